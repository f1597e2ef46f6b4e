// Package mailcfg loads the email provider settings of the host application.
//
// Every key is resolved on its own: a value from the JSON file wins over the
// environment variable, which wins over the built-in default.
package mailcfg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	ProviderGmailAPI = "gmail_api"
	ProviderSMTP     = "smtp"

	DefaultFile = "email_config.json"
)

var (
	ErrProvider = errors.New("unsupported email provider")
	ErrInvalid  = errors.New("invalid email configuration")
)

type SMTP struct {
	Server    string `mapstructure:"smtp_server"`
	Port      int    `mapstructure:"smtp_port"`
	UseTLS    bool   `mapstructure:"smtp_use_tls"`
	Username  string `mapstructure:"smtp_username"`
	Password  string `mapstructure:"smtp_password"`
	FromEmail string `mapstructure:"from_email"`
}

type Config struct {
	Provider string `mapstructure:"email_provider"`
	SMTP     SMTP   `mapstructure:"smtp_settings"`
}

// Redacted returns a copy safe for printing.
func (c Config) Redacted() Config {
	if c.SMTP.Password != "" {
		c.SMTP.Password = "<redacted>"
	}
	return c
}

const (
	keyProvider = "email_provider"
	keyServer   = "smtp_settings.smtp_server"
	keyPort     = "smtp_settings.smtp_port"
	keyTLS      = "smtp_settings.smtp_use_tls"
	keyUsername = "smtp_settings.smtp_username"
	keyPassword = "smtp_settings.smtp_password"
	keyFrom     = "smtp_settings.from_email"
)

var envKeys = []struct {
	key string
	env string
}{
	{keyProvider, "EMAIL_PROVIDER"},
	{keyServer, "SMTP_SERVER"},
	{keyPort, "SMTP_PORT"},
	{keyUsername, "SMTP_USERNAME"},
	{keyPassword, "SMTP_PASSWORD"},
	{keyFrom, "FROM_EMAIL"},
}

const envTLS = "SMTP_USE_TLS"

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyProvider, ProviderGmailAPI)
	v.SetDefault(keyServer, "localhost")
	v.SetDefault(keyPort, 1025) // Proton Mail Bridge
	v.SetDefault(keyTLS, false)
	v.SetDefault(keyUsername, "")
	v.SetDefault(keyPassword, "")
	v.SetDefault(keyFrom, "")
}

// Load reads path (JSON) when it exists. A file which cannot be parsed is
// logged and ignored.
func Load(ctx context.Context, logger *slog.Logger, path string) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				logger.WarnContext(ctx, "could not load email config file: ignoring", "path", path, "error", err)
			}
		}
	}

	for _, e := range envKeys {
		if v.InConfig(e.key) {
			continue
		}
		if err := v.BindEnv(e.key, e.env); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", e.env, err)
		}
	}
	if tls, ok := os.LookupEnv(envTLS); ok && tls != "" && !v.InConfig(keyTLS) {
		v.Set(keyTLS, strings.EqualFold(tls, "true"))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGmailAPI, ProviderSMTP:
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrProvider, c.Provider, ProviderGmailAPI, ProviderSMTP)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("%w: smtp_port %d", ErrInvalid, c.SMTP.Port)
	}
	return nil
}

// Save writes cfg to path as JSON; path needs the .json extension.
func Save(path string, cfg Config) error {
	v := viper.New()
	v.Set(keyProvider, cfg.Provider)
	v.Set(keyServer, cfg.SMTP.Server)
	v.Set(keyPort, cfg.SMTP.Port)
	v.Set(keyTLS, cfg.SMTP.UseTLS)
	v.Set(keyUsername, cfg.SMTP.Username)
	v.Set(keyPassword, cfg.SMTP.Password)
	v.Set(keyFrom, cfg.SMTP.FromEmail)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("saving email config: %w", err)
	}
	return nil
}
