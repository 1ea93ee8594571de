package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config is loaded from environment variables and an optional config.yaml.
type Config struct {
	Port           string   `env:"PORT" yaml:"port" default:"8080" usage:"HTTP listen port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" yaml:"allowed_origins" default:"http://127.0.0.1:3000" usage:"CORS origins"`

	MongoURI          string `env:"MONGO_URI" yaml:"mongo_uri" usage:"MongoDB connection string; empty uses the in-memory store"`
	MongoDatabase     string `env:"MONGO_DATABASE" yaml:"mongo_database" default:"sawmill"`
	MongoTransactions bool   `env:"MONGO_TRANSACTIONS" yaml:"mongo_transactions" default:"true" usage:"use multi-document transactions (requires a replica set)"`

	RedisAddr     string `env:"REDIS_ADDR" yaml:"redis_addr"`
	RedisPassword string `env:"REDIS_PASSWORD" yaml:"redis_password"`
	RedisDB       int    `env:"REDIS_DB" yaml:"redis_db" default:"0"`

	AuditDatabaseURL string `env:"AUDIT_DATABASE_URL" yaml:"audit_database_url" usage:"PostgreSQL URL for the audit ledger"`

	AuthSecret     string        `env:"AUTH_SECRET" yaml:"auth_secret"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" yaml:"access_token_ttl" default:"8h"`

	AnalyticsTimezone string        `env:"ANALYTICS_TIMEZONE" yaml:"analytics_timezone" default:"Africa/Johannesburg"`
	LowStockThreshold int           `env:"LOW_STOCK_THRESHOLD" yaml:"low_stock_threshold" default:"10"`
	SimilarCacheTTL   time.Duration `env:"SIMILAR_CACHE_TTL" yaml:"similar_cache_ttl" default:"5m"`

	LogDevelopment bool `env:"LOG_DEVELOPMENT" yaml:"log_development" default:"false"`
}

func Load() (Config, error) {
	return load([]string{"config.yaml", "/etc/sawmill/config.yaml"})
}

func load(files []string) (Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:          true,
		AllowUnknownFields: true,
		Files:              files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.LowStockThreshold < 0 {
		cfg.LowStockThreshold = 0
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the zone that analytics days are cut in.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AnalyticsTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "analytics timezone %q", c.AnalyticsTimezone)
	}
	return loc, nil
}
