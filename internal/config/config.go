package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
)

type Config struct {
	Server Server `yaml:"server"`
	Store  Store  `yaml:"store"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	SqlitePath    string `yaml:"sqlitePath"` // takes precedence over postgresDsn when set
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Store struct {
	CacheMode     string `yaml:"cacheMode"` // none, local, memcached
	SingleReplica bool   `yaml:"singleReplica"`
	CacheTTL      string `yaml:"cacheTTL"`
	RevRetryLimit uint64 `yaml:"revRetryLimit"`
	LogLevel      string `yaml:"logLevel"`  // debug, info, warn, error
	LogFormat     string `yaml:"logFormat"` // text, json

	cacheTTL time.Duration
}

const (
	CacheNone      = "none"
	CacheLocal     = "local"
	CacheMemcached = "memcached"
)

func Default() Config {
	d := domain.DefaultConfig()
	return Config{
		Server: Server{
			Listen: ":8000",
		},
		Store: Store{
			CacheMode:     CacheNone,
			CacheTTL:      d.CacheTTL.String(),
			RevRetryLimit: d.RevRetryLimit,
			LogLevel:      "info",
			LogFormat:     "text",
			cacheTTL:      d.CacheTTL,
		},
	}
}

// Load reads a yaml file. ${VAR} references are expanded from the environment
// before parsing and unset keys keep their defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config file")
	}
	return Parse(raw)
}

func Parse(raw []byte) (Config, error) {
	config := Default()
	err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &config)
	if err != nil {
		return Config{}, errors.Wrap(err, "parsing config file")
	}

	if config.Store.CacheTTL != "" {
		config.Store.cacheTTL, err = time.ParseDuration(config.Store.CacheTTL)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parsing store.cacheTTL %q", config.Store.CacheTTL)
		}
	}

	if err := config.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "validating config")
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if c.Server.PostgresDsn == "" && c.Server.SqlitePath == "" {
		return errors.New("server.postgresDsn or server.sqlitePath is required")
	}
	if c.Server.EnableTrace && c.Server.TraceEndpoint == "" {
		return errors.New("server.traceEndpoint is required when tracing is enabled")
	}

	switch c.Store.CacheMode {
	case CacheNone:
	case CacheLocal:
		// a process-private cache never sees other replicas' writes
		if !c.Store.SingleReplica {
			return errors.New("store.cacheMode local requires store.singleReplica")
		}
	case CacheMemcached:
		if c.Server.MemcachedAddr == "" {
			return errors.New("server.memcachedAddr is required for memcached cache mode")
		}
	default:
		return errors.Errorf("unknown store.cacheMode %q", c.Store.CacheMode)
	}

	if c.Store.cacheTTL <= 0 {
		return errors.New("store.cacheTTL must be positive")
	}
	// zero would mean unlimited retries
	if c.Store.RevRetryLimit == 0 {
		return errors.New("store.revRetryLimit must be positive")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Store.LogLevel)); err != nil {
		return errors.Wrap(err, "store.logLevel")
	}

	switch c.Store.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("unknown store.logFormat %q", c.Store.LogFormat)
	}
	return nil
}

func (c Config) LogLevel() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Store.LogLevel))
	return level
}

// ToDomain returns the tunables handed to the repositories.
func (c Config) ToDomain() domain.Config {
	return domain.Config{
		CacheTTL:      c.Store.cacheTTL,
		RevRetryLimit: c.Store.RevRetryLimit,
	}
}
