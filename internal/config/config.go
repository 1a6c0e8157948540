package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/leozw/quota-guardian/internal/kpi"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Mimir     MimirConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Probes    []ProbeConfig
	KPI       kpi.Config `mapstructure:"kpi"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL         string
	SnapshotTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type MimirConfig struct {
	URL           string
	TenantHeader  string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

type SchedulerConfig struct {
	WorkerCount  int
	Interval     time.Duration
	QueueTimeout time.Duration
	// StatsWindow is the refresh job window summarized for the dashboard.
	StatsWindow time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ProbeConfig describes one dependency checked for the health source.
type ProbeConfig struct {
	Name    string
	Type    string // http | dns | tls
	Target  string
	Timeout time.Duration
	Weight  int
	// Resolver and RecordType apply to dns probes only.
	Resolver   string
	RecordType string
	// MinCertDays marks a tls probe degraded when the certificate expires sooner.
	MinCertDays int
}

func Load() (*Config, error) {
	// .env é opcional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("QUOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

// LoadFile reads an explicit config file, used by the CLI.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("QUOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.maxconnections", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.snapshotttl", "10m")
	v.SetDefault("mimir.tenantheader", "X-Scope-OrgID")
	v.SetDefault("mimir.batchsize", 1000)
	v.SetDefault("mimir.flushinterval", "30s")
	v.SetDefault("scheduler.workercount", 4)
	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.queuetimeout", "5s")
	v.SetDefault("scheduler.statswindow", "1h")
	v.SetDefault("ratelimit.requestspersecond", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("kpi.priority_weights.performance", 1.0)
	v.SetDefault("kpi.priority_weights.system", 1.0)
	v.SetDefault("kpi.priority_weights.activity", 1.0)
	v.SetDefault("kpi.priority_weights.health", 1.0)
	v.SetDefault("kpi.display_limits.max_kpis_per_section", 6)
	v.SetDefault("kpi.display_limits.max_sections", 4)
	v.SetDefault("kpi.display_limits.compact_mode_kpis", 4)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("MIMIR_URL"); url != "" {
		cfg.Mimir.URL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}

	for i := range cfg.Probes {
		if cfg.Probes[i].Timeout <= 0 {
			cfg.Probes[i].Timeout = 5 * time.Second
		}
		if cfg.Probes[i].Weight <= 0 {
			cfg.Probes[i].Weight = 1
		}
		if cfg.Probes[i].Type == "dns" {
			if cfg.Probes[i].Resolver == "" {
				cfg.Probes[i].Resolver = "8.8.8.8:53"
			}
			if cfg.Probes[i].RecordType == "" {
				cfg.Probes[i].RecordType = "A"
			}
		}
	}

	return &cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Scheduler.WorkerCount <= 0 {
		return fmt.Errorf("scheduler.workercount must be > 0, got %d", c.Scheduler.WorkerCount)
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be > 0")
	}
	if c.Mimir.URL != "" && c.Mimir.BatchSize <= 0 {
		return fmt.Errorf("mimir.batchsize must be > 0, got %d", c.Mimir.BatchSize)
	}
	seen := make(map[string]bool, len(c.Probes))
	for _, p := range c.Probes {
		if p.Name == "" || p.Target == "" {
			return errors.New("probes: name and target are required")
		}
		if seen[p.Name] {
			return fmt.Errorf("probe %s: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if p.Type != "http" && p.Type != "dns" && p.Type != "tls" {
			return fmt.Errorf("probe %s: unsupported type %q", p.Name, p.Type)
		}
	}
	return c.KPI.Validate()
}
