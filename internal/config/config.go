package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
}

// DecisionConfig holds the knobs of the decision engine itself.
type DecisionConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	TimedLimit          time.Duration `mapstructure:"timed_limit"`
	DefaultZone         string        `mapstructure:"default_zone"`
	LockTimeout         time.Duration `mapstructure:"lock_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Decision DecisionConfig `mapstructure:"decision"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load reads config.yaml from path (optional) with PARKWATCH_* environment
// overrides, e.g. PARKWATCH_DB_DSN, PARKWATCH_DECISION_TIMED_LIMIT.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("db.dsn", "host=localhost user=parkwatch password=parkwatch dbname=parkwatch port=5432 sslmode=disable")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("decision.confidence_threshold", 0.95)
	v.SetDefault("decision.timed_limit", 2*time.Hour)
	v.SetDefault("decision.default_zone", "default")
	v.SetDefault("decision.lock_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("PARKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Auth.Enabled && cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth enabled but no secret configured")
	}
	if cfg.Decision.ConfidenceThreshold < 0 || cfg.Decision.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be within [0,1]")
	}
	if cfg.Decision.TimedLimit <= 0 {
		return nil, fmt.Errorf("timed limit must be positive")
	}

	return &cfg, nil
}
