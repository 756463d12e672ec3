// Package config provides configuration loading from environment variables
// with custom prefixes, automatic type conversion, and .env file loading.
//
// Define a configuration struct with environment variable tags:
//
//	type Config struct {
//	    Secret string        `env:"STATE_SECRET,required"`
//	    MaxAge time.Duration `env:"STATE_MAX_AGE,default:10m"`
//	    Debug  bool          `env:"DEBUG,default:false"`
//	}
//
// Load it from the environment (and an optional .env file):
//
//	import "github.com/luminastack/fusekit/config"
//
//	var cfg Config
//	err := config.Load(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Variable names are prefixed with "FUSE_" by default; pass
// config.LoadOptions{Prefix: "MYAPP_"} to change that. Real environment
// variables take precedence over .env file values.
//
// Supported field types: string, int, int64, bool, float64 and
// time.Duration. Fields without an env tag are skipped.
//
// All fusekit packages load their configuration through this package:
// statetoken reads FUSE_STATE_*, oauthtx reads FUSE_TX_*, breaker reads
// FUSE_BREAKER_* and asynccache reads FUSE_CACHE_* variables.
package config
