package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/medtrack/medtrack/internal/platform/logging"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"

	defaultMongoDatabase = "medicineDB"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `mapstructure:"LOG_COMPRESS"`

	StoreDriver      string        `mapstructure:"STORE_DRIVER"`
	MongoURI         string        `mapstructure:"MONGODB_URI"`
	MongoDatabase    string        `mapstructure:"MONGODB_DATABASE"`
	MongoTimeout     time.Duration `mapstructure:"MONGODB_TIMEOUT"`
	MongoMaxPoolSize uint64        `mapstructure:"MONGODB_MAX_POOL_SIZE"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`

	JWTSecret    string `mapstructure:"JWT_SECRET"`
	JWTExpiresIn string `mapstructure:"JWT_EXPIRES_IN"`

	FrontendURL              string   `mapstructure:"FRONTEND_URL"`
	CORSOrigins              []string `mapstructure:"CORS_ORIGINS"`
	ScheduleStrictCaregivers bool     `mapstructure:"SCHEDULE_STRICT_CAREGIVERS"`

	MQTTBrokerURL   string `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername    string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword    string `mapstructure:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `mapstructure:"MQTT_TOPIC_PREFIX"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS", "LOG_COMPRESS",
	"STORE_DRIVER", "MONGODB_URI", "MONGODB_DATABASE", "MONGODB_TIMEOUT", "MONGODB_MAX_POOL_SIZE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_EXPIRES_IN",
	"FRONTEND_URL", "CORS_ORIGINS", "SCHEDULE_STRICT_CAREGIVERS",
	"MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_TOPIC_PREFIX",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("STORE_DRIVER", StoreMongo)
	v.SetDefault("MONGODB_URI", "mongodb://127.0.0.1:27017/medicineDB")
	v.SetDefault("MONGODB_TIMEOUT", "10s")
	v.SetDefault("MONGODB_MAX_POOL_SIZE", 100)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_EXPIRES_IN", "1d")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("MQTT_CLIENT_ID", "medtrack-server")
	v.SetDefault("MQTT_TOPIC_PREFIX", "medtrack/devices")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.MQTTTopicPrefix = strings.Trim(cfg.MQTTTopicPrefix, "/")

	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = databaseFromURI(cfg.MongoURI)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MQTTEnabled reports whether the device gateway should be started.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBrokerURL != ""
}

// AllowedOrigins is the CORS allow-list: the frontend, the local development
// hosts and anything listed in CORS_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	seen := map[string]bool{}
	var out []string
	add := func(o string) {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			return
		}
		seen[o] = true
		out = append(out, o)
	}
	add(c.FrontendURL)
	add("http://localhost:3000")
	add("http://127.0.0.1:5500")
	for _, o := range c.CORSOrigins {
		add(o)
	}
	return out
}

// TokenLifetime parses JWT_EXPIRES_IN. Besides Go durations ("12h") it accepts
// a day count ("7d") and a bare number of seconds ("3600").
func (c *Config) TokenLifetime() (time.Duration, error) {
	return ParseLifetime(c.JWTExpiresIn)
}

func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

// LogOptions maps the LOG_* settings onto the logger constructor.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:      c.LogLevel,
		Console:    c.IsDev(),
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   c.LogCompress,
	}
}

// ValidateStore checks only the settings needed to reach the configured
// store. The migrate and indexes commands use it.
func (c *Config) ValidateStore() error {
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORE_DRIVER is %q", StoreMongo)
		}
		if _, err := connstring.ParseAndValidate(c.MongoURI); err != nil {
			return fmt.Errorf("MONGODB_URI is invalid: %w", err)
		}
		if c.MongoTimeout <= 0 {
			return fmt.Errorf("MONGODB_TIMEOUT must be positive")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StorePostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMongo, StorePostgres, c.StoreDriver)
	}
	return nil
}

// Validate checks that the server can start. It fails fast instead of running
// with a partially configured API.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := c.TokenLifetime(); err != nil {
		return fmt.Errorf("JWT_EXPIRES_IN is invalid: %w", err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.MQTTEnabled() && c.MQTTTopicPrefix == "" {
		return fmt.Errorf("MQTT_TOPIC_PREFIX must not be empty when MQTT_BROKER_URL is set")
	}
	return nil
}

func databaseFromURI(uri string) string {
	cs, err := connstring.Parse(uri)
	if err != nil || cs.Database == "" {
		return defaultMongoDatabase
	}
	return cs.Database
}
