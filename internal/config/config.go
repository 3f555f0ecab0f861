// Package config loads client configuration from environment variables.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config contains the settings for the StudyHall client.
type Config struct {
	LogLevel string   `env:"LOG_LEVEL" envDefault:"info"`
	Identity Identity `envPrefix:"IDENTITY_"`
	Platform Platform `envPrefix:"PLATFORM_"`
	Session  Session  `envPrefix:"SESSION_"`
}

// Identity contains identity service parameters.
type Identity struct {
	URL     string        `env:"URL" envDefault:"https://id.studyhall.app"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Platform contains platform API parameters.
type Platform struct {
	URL string `env:"URL" envDefault:"https://api.studyhall.app"`
}

// Session contains credential lifecycle parameters.
type Session struct {
	// CredentialFile is where the token pair is persisted between runs.
	// Empty selects a file under the user config directory.
	CredentialFile    string        `env:"CREDENTIAL_FILE"`
	RenewalMargin     time.Duration `env:"RENEWAL_MARGIN" envDefault:"30s"`
	KeepAliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"5m"`
	RedirectDebounce  time.Duration `env:"REDIRECT_DEBOUNCE" envDefault:"150ms"`
}

// New loads configuration from STUDYHALL_-prefixed environment variables.
func New() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "STUDYHALL_"}); err != nil {
		return nil, errors.Wrap(err, "[config.New] parse environment")
	}
	return &cfg, nil
}
