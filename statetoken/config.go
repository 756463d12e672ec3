package statetoken

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/luminastack/fusekit/config"
)

// Config defines the state token codec configuration
type Config struct {
	// Secret is the shared HMAC-SHA256 signing secret. When empty the codec
	// runs in unsigned mode and tokens carry no signature.
	Secret string `env:"STATE_SECRET"`

	// RequireSigning makes New refuse to construct an unsigned codec.
	// Set this in production profiles.
	RequireSigning bool `env:"STATE_REQUIRE_SIGNING,default:false"`

	// MaxAge is the default verification window for ParseAndVerifyState.
	MaxAge time.Duration `env:"STATE_MAX_AGE,default:10m"`

	// Logger receives the unsigned-mode warning. Defaults to a no-op logger.
	Logger *zap.Logger `json:"-"`
}

// GetConfig returns config loaded from environment with optional LoadOptions
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("failed to load statetoken config: %w", err)
	}
	return cfg, nil
}

// Builder pattern for custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Init initializes the global codec with the builder's prefix
func (b *Builder) Init() error {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return err
	}
	return Init(*cfg)
}

// New creates a new codec instance with the builder's prefix
func (b *Builder) New() (*Codec, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return New(*cfg)
}
