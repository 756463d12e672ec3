package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadOptions defines options for loading configuration from environment variables.
type LoadOptions struct {
	Prefix string // Prefix to prepend to environment variable names (default: "FUSE_")
}

// Load populates a struct from a .env file and environment variables using reflection.
//
// Struct field tags determine environment variable names:
//   - `env:"VAR_NAME"`: maps the field to the named variable
//   - `env:"VAR_NAME,default:value"`: default used when the variable is unset
//   - `env:"VAR_NAME,required"`: Load fails when the variable is unset
//
// Variable names are prefixed with LoadOptions.Prefix (default "FUSE_").
//
// Example:
//
//	type Config struct {
//	    Secret string        `env:"STATE_SECRET,required"`
//	    MaxAge time.Duration `env:"STATE_MAX_AGE,default:10m"`
//	}
//
//	var cfg Config
//	err := config.Load(&cfg)
//	// Reads FUSE_STATE_SECRET and FUSE_STATE_MAX_AGE.
func Load(cfg interface{}, opts ...LoadOptions) error {
	options := LoadOptions{Prefix: "FUSE_"} // Default
	if len(opts) > 0 {
		options = opts[0]
	}
	// Silently try to load .env file, ignore if not found
	godotenv.Load()

	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: Load expects a pointer to a struct, got %T", cfg)
	}
	v := rv.Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			continue
		}

		parts := strings.Split(envTag, ",")
		envName := parts[0]
		defaultValue := ""
		required := false

		for _, part := range parts[1:] {
			if strings.HasPrefix(part, "default:") {
				defaultValue = strings.TrimPrefix(part, "default:")
			}
			if part == "required" {
				required = true
			}
		}

		// Apply prefix to environment variable name
		fullEnvName := options.Prefix + envName
		value := os.Getenv(fullEnvName)
		if value == "" {
			if required {
				return fmt.Errorf("config: required environment variable %s is not set", fullEnvName)
			}
			value = defaultValue
		}

		if value != "" {
			if err := setFieldValue(v.Field(i), value); err != nil {
				return fmt.Errorf("config: %s: %w", fullEnvName, err)
			}
		}
	}

	return nil
}

// setFieldValue converts a string environment value to the field's type.
// Supported types: string, int, int64, bool, float64 and time.Duration.
func setFieldValue(field reflect.Value, value string) error {
	// Check for time.Duration first
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		// Skip unsupported field types silently
		return nil
	}
	return nil
}
