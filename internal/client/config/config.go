package config

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/go-playground/validator/v10"
)

// DefaultSessionTTL is how long persisted session cookies live: four weeks
// times twelve, as the web client did.
const DefaultSessionTTL = 1000 * 60 * 60 * 24 * 7 * 4 * 12 * time.Millisecond

// Config holds runtime settings for the biru CLI.
//
// Fields:
//   - Server: AT-Protocol server (PDS) hostname used for login.
//   - RegistryURL: base URL of the handle backend.
//   - DBPath / KeyPath: local session database and the key sealing its tokens.
//   - DebounceDelay: quiet period before a server lookup or availability check.
//   - RequestTimeout: upper bound for every network call.
//   - SessionTTL: lifetime of the persisted session cookies.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	Server         string        `validate:"required,hostname"`
	RegistryURL    string        `validate:"required,url"`
	DBPath         string        `validate:"required"`
	KeyPath        string        `validate:"required"`
	DebounceDelay  time.Duration `validate:"gte=0s"`
	RequestTimeout time.Duration `validate:"gt=0s"`
	SessionTTL     time.Duration `validate:"gt=0s"`
	LogLevel       string        `validate:"oneof=debug info warn error"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Server = "bsky.social"
	c.RegistryURL = "https://bsky.makeup"
	c.DBPath = "biru.db"
	c.KeyPath = "biru.key"
	c.DebounceDelay = 500 * time.Millisecond
	c.RequestTimeout = 10 * time.Second
	c.SessionTTL = DefaultSessionTTL
	c.LogLevel = "warn"
}

// Validate reports the first invalid field as a common.ValidationError.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return common.NewValidationError(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
	}
	return err
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
