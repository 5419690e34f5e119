package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	RateLimit   RateLimitConfig
	Timeouts    TimeoutConfig
	SMTP        SMTPConfig
}

type ServerConfig struct {
	Port      int
	PublicURL string
}

type DatabaseConfig struct {
	Path string
}

type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
	Retention   time.Duration
	SweepEvery  time.Duration
}

// TimeoutConfig bounds every outbound call made on the intake path.
type TimeoutConfig struct {
	CaptchaVerify time.Duration
	Storage       time.Duration
	Notify        time.Duration
}

// SMTPConfig holds process-wide notifier defaults. A form's notifier policy
// overrides the recipient; the transport settings are shared.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	From     string
	To       string
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("formroute_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("formroute_port", 8080)
	v.SetDefault("formroute_public_url", "")
	v.SetDefault("formroute_db_path", "data/formroute")
	v.SetDefault("formroute_rate_limit_max", 10)
	v.SetDefault("formroute_rate_limit_window_minutes", 15)
	v.SetDefault("formroute_rate_limit_retention_minutes", 60)
	v.SetDefault("formroute_rate_limit_sweep_minutes", 10)
	v.SetDefault("formroute_captcha_timeout_ms", 5000)
	v.SetDefault("formroute_storage_timeout_ms", 10000)
	v.SetDefault("formroute_notify_timeout_ms", 10000)
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_pass", "")
	v.SetDefault("smtp_secure", false)
	v.SetDefault("from_email", "")
	v.SetDefault("to_email", "")

	port := v.GetInt("formroute_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid FORMROUTE_PORT: %d", port)
	}

	maxAttempts := v.GetInt("formroute_rate_limit_max")
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	windowMinutes := v.GetInt("formroute_rate_limit_window_minutes")
	if windowMinutes <= 0 {
		windowMinutes = 15
	}

	retentionMinutes := v.GetInt("formroute_rate_limit_retention_minutes")
	if retentionMinutes < windowMinutes {
		retentionMinutes = windowMinutes * 4
	}

	sweepMinutes := v.GetInt("formroute_rate_limit_sweep_minutes")
	if sweepMinutes <= 0 {
		sweepMinutes = 10
	}

	cfg := Config{
		Environment: resolveEnvironment(v),
		Server: ServerConfig{
			Port:      port,
			PublicURL: strings.TrimSpace(v.GetString("formroute_public_url")),
		},
		Database: DatabaseConfig{
			Path: strings.TrimSpace(v.GetString("formroute_db_path")),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: maxAttempts,
			Window:      time.Duration(windowMinutes) * time.Minute,
			Retention:   time.Duration(retentionMinutes) * time.Minute,
			SweepEvery:  time.Duration(sweepMinutes) * time.Minute,
		},
		Timeouts: TimeoutConfig{
			CaptchaVerify: millis(v, "formroute_captcha_timeout_ms", 5000),
			Storage:       millis(v, "formroute_storage_timeout_ms", 10000),
			Notify:        millis(v, "formroute_notify_timeout_ms", 10000),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(v.GetString("smtp_host")),
			Port:     v.GetInt("smtp_port"),
			Username: strings.TrimSpace(v.GetString("smtp_user")),
			Password: v.GetString("smtp_pass"),
			SSL:      v.GetBool("smtp_secure"),
			From:     strings.TrimSpace(v.GetString("from_email")),
			To:       strings.TrimSpace(v.GetString("to_email")),
		},
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/formroute"
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		cfg.SMTP.Port = 587
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%d", port)
	}

	return cfg, nil
}

func millis(v *viper.Viper, key string, fallback int) time.Duration {
	ms := v.GetInt(key)
	if ms <= 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"formroute_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
