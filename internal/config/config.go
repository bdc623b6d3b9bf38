package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
	} `mapstructure:"server"`

	Upstream struct {
		BaseURL        string `mapstructure:"base_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"upstream"`

	Captcha struct {
		Endpoint string `mapstructure:"endpoint"`
		SiteKey  string `mapstructure:"site_key"`
		Secret   string `mapstructure:"secret"`
	} `mapstructure:"captcha"`

	OTP struct {
		// Client-side expiry bound. The server's true expiry is
		// longer; the shorter bound guarantees the verify call
		// always lands before server expiry.
		ExpiryMinutes      int `mapstructure:"expiry_minutes"`
		WarningLeadSeconds int `mapstructure:"warning_lead_seconds"`
	} `mapstructure:"otp"`

	Cart struct {
		// Wait between the merge call and the verification fetch.
		// The upstream merge is handled by an async worker, so this
		// is a heuristic settle window, not a guaranteed bound.
		SettleDelayMillis int `mapstructure:"settle_delay_millis"`
	} `mapstructure:"cart"`

	Storage struct {
		ProfilePath string `mapstructure:"profile_path"`
	} `mapstructure:"storage"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
}

func Load() *Config {
	// Load .env file if exists (ignore error in production)
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")

	// Auto bind environment variables
	v.AutomaticEnv()

	// Set sensible defaults (binary works without config file)
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("upstream.base_url", "http://localhost:8080")
	v.SetDefault("upstream.timeout_seconds", 15)
	v.SetDefault("otp.expiry_minutes", 4)
	v.SetDefault("otp.warning_lead_seconds", 60)
	v.SetDefault("cart.settle_delay_millis", 1000)
	v.SetDefault("storage.profile_path", "data/profile.json")
	v.SetDefault("redis.addr", "localhost:6379")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("config unmarshal error: %v", err)
	}

	// Override upstream settings from environment
	if base := os.Getenv("UPSTREAM_BASE_URL"); base != "" {
		cfg.Upstream.BaseURL = base
	}
	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if secret := os.Getenv("CAPTCHA_SECRET"); secret != "" {
		cfg.Captcha.Secret = secret
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	return &cfg
}

// OTPExpiry returns the client-side challenge lifetime.
func (c *Config) OTPExpiry() time.Duration {
	return time.Duration(c.OTP.ExpiryMinutes) * time.Minute
}

// OTPWarningLead returns how long before expiry the warning fires.
func (c *Config) OTPWarningLead() time.Duration {
	return time.Duration(c.OTP.WarningLeadSeconds) * time.Second
}

// SettleDelay returns the merge verification settle window.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Cart.SettleDelayMillis) * time.Millisecond
}

// UpstreamTimeout returns the outbound HTTP timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}
