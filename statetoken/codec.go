package statetoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Global instance management
var (
	defaultCodec *Codec
	defaultOnce  sync.Once
	defaultErr   error
)

const (
	// nonceBytes is the size of the random nonce embedded in each token.
	nonceBytes = 16

	unsignedFieldCount = 4
	signedFieldCount   = 5
)

// Claims are the verified fields carried by a state token.
type Claims struct {
	UserID    string
	SessionID string
	Nonce     string
	IssuedAt  time.Time
}

// Codec mints and verifies OAuth state tokens.
type Codec struct {
	key    []byte // nil in unsigned mode
	maxAge time.Duration
	logger *zap.Logger

	now func() time.Time
}

// Init initializes the global codec instance with optional config
func Init(configs ...Config) error {
	defaultOnce.Do(func() {
		var cfg *Config
		if len(configs) > 0 {
			cfg = &configs[0]
		} else {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}

		defaultCodec, defaultErr = New(*cfg)
	})

	return defaultErr
}

// New creates a new codec instance with given config
func New(cfg Config) (*Codec, error) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var key []byte
	if cfg.Secret != "" {
		key = []byte(cfg.Secret)
	} else {
		if cfg.RequireSigning {
			return nil, fmt.Errorf("%w: signing required but no secret configured", ErrInvalidConfig)
		}
		logger.Warn("state token signing disabled: tokens are not tamper-proof and must not be trusted in production")
	}

	return &Codec{
		key:    key,
		maxAge: cfg.MaxAge,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Signed reports whether minted tokens carry an HMAC signature.
func (c *Codec) Signed() bool {
	return c.key != nil
}

// MakeState mints an opaque state token binding userID and sessionID to a
// fresh random nonce and the current Unix timestamp. The token is URL-safe
// and suitable for embedding as an authorization-request query parameter.
func (c *Codec) MakeState(userID, sessionID string) (string, error) {
	if c == nil {
		return "", ErrNotInitialized
	}
	if strings.ContainsRune(userID, '|') || strings.ContainsRune(sessionID, '|') {
		return "", fmt.Errorf("identifiers must not contain %q", '|')
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	core := strings.Join([]string{
		userID,
		sessionID,
		hex.EncodeToString(nonce),
		strconv.FormatInt(c.now().Unix(), 10),
	}, "|")

	if c.key != nil {
		core = core + "|" + c.sign(core)
	}

	return base64.RawURLEncoding.EncodeToString([]byte(core)), nil
}

// ParseAndVerifyState decodes a state token, checks its signature when a
// secret is configured, and enforces the freshness window. A maxAge of zero
// or less uses the codec default.
//
// Every decode or format failure is reclassified into ErrStateInvalid or
// ErrStateExpired; nothing else escapes parsing. The codec does not enforce
// single-use; replay prevention is the caller's responsibility via the
// transaction store.
func (c *Codec) ParseAndVerifyState(token string, maxAge time.Duration) (*Claims, error) {
	if c == nil {
		return nil, ErrNotInitialized
	}
	if maxAge <= 0 {
		maxAge = c.maxAge
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable token", ErrStateInvalid)
	}

	fields := strings.Split(string(raw), "|")
	if len(fields) != unsignedFieldCount && len(fields) != signedFieldCount {
		return nil, fmt.Errorf("%w: expected %d or %d fields, got %d",
			ErrStateInvalid, unsignedFieldCount, signedFieldCount, len(fields))
	}

	if c.key != nil {
		if len(fields) != signedFieldCount {
			return nil, fmt.Errorf("%w: signature missing", ErrStateInvalid)
		}
		core := strings.Join(fields[:unsignedFieldCount], "|")
		expected := c.sign(core)
		// Constant-time comparison
		if !hmac.Equal([]byte(fields[unsignedFieldCount]), []byte(expected)) {
			return nil, fmt.Errorf("%w: signature mismatch", ErrStateInvalid)
		}
	}

	ts, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed timestamp", ErrStateInvalid)
	}
	issuedAt := time.Unix(ts, 0)

	if c.now().Sub(issuedAt) > maxAge {
		return nil, fmt.Errorf("%w: token older than %s", ErrStateExpired, maxAge)
	}

	return &Claims{
		UserID:    fields[0],
		SessionID: fields[1],
		Nonce:     fields[2],
		IssuedAt:  issuedAt,
	}, nil
}

// sign returns the hex-encoded HMAC-SHA256 of core under the shared secret.
func (c *Codec) sign(core string) string {
	h := hmac.New(sha256.New, c.key)
	h.Write([]byte(core))
	return hex.EncodeToString(h.Sum(nil))
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultCodec = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}

// Service returns the global codec instance
func Service() *Codec {
	if defaultCodec == nil {
		Init() // Initialize with defaults if needed
	}
	return defaultCodec
}

// MakeState mints a token using the global codec
func MakeState(userID, sessionID string) (string, error) {
	if defaultCodec == nil {
		return "", ErrNotInitialized
	}
	return defaultCodec.MakeState(userID, sessionID)
}

// ParseAndVerifyState verifies a token using the global codec
func ParseAndVerifyState(token string, maxAge time.Duration) (*Claims, error) {
	if defaultCodec == nil {
		return nil, ErrNotInitialized
	}
	return defaultCodec.ParseAndVerifyState(token, maxAge)
}
