package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`

	// Reminder engine knobs. The due window is symmetric around each dose's
	// scheduled wall-clock time; doses outside it are never surfaced.
	PollInterval              time.Duration `mapstructure:"REMINDER_POLL_INTERVAL"`
	DueTolerance              time.Duration `mapstructure:"REMINDER_DUE_TOLERANCE"`
	SoundCueInterval          time.Duration `mapstructure:"REMINDER_SOUND_INTERVAL"`
	AllowDismissWhileSounding bool          `mapstructure:"REMINDER_ALLOW_DISMISS_WHILE_SOUNDING"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REMINDER_POLL_INTERVAL", "10s")
	v.SetDefault("REMINDER_DUE_TOLERANCE", "5m")
	v.SetDefault("REMINDER_SOUND_INTERVAL", "1s")
	v.SetDefault("REMINDER_ALLOW_DISMISS_WHILE_SOUNDING", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("REMINDER_POLL_INTERVAL")
	v.BindEnv("REMINDER_DUE_TOLERANCE")
	v.BindEnv("REMINDER_SOUND_INTERVAL")
	v.BindEnv("REMINDER_ALLOW_DISMISS_WHILE_SOUNDING")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Auth middleware accepts the X-Patient-ID header without a token.")
		log.Println("WARNING: Set ENV=production and JWT_SECRET for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a JWT
// secret is mandatory, and the poll interval must be short enough to hit
// every due window at least once.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("REMINDER_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.DueTolerance <= 0 {
		return fmt.Errorf("REMINDER_DUE_TOLERANCE must be positive, got %s", c.DueTolerance)
	}
	if c.PollInterval >= 2*c.DueTolerance {
		return fmt.Errorf("REMINDER_POLL_INTERVAL (%s) must be shorter than the %s due window or doses can be missed entirely",
			c.PollInterval, 2*c.DueTolerance)
	}
	if c.SoundCueInterval <= 0 {
		return fmt.Errorf("REMINDER_SOUND_INTERVAL must be positive, got %s", c.SoundCueInterval)
	}
	return nil
}
