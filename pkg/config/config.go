package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Cluster     ClusterConfig
	Replication ReplicationConfig
	Redis       RedisConfig
	Catalog     CatalogConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// LeaderConfig binds a symbolic leader id to its database.
type LeaderConfig struct {
	ID       string
	Database DatabaseConfig
}

// ClusterConfig is the fixed leader table plus the leaders this process
// treats as its entry points.
type ClusterConfig struct {
	Leaders      []LeaderConfig
	LocalLeaders []string
}

// ReplicationConfig bounds every leader interaction and tunes healing.
type ReplicationConfig struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	Parallel         bool
	HealOnStartup    bool
	HealInterval     time.Duration
	HealWorkers      int
	HealRetries      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CatalogConfig governs catalog caching.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Leader returns the configuration of the given leader id.
func (c ClusterConfig) Leader(id string) (LeaderConfig, bool) {
	for _, l := range c.Leaders {
		if l.ID == id {
			return l, true
		}
	}
	return LeaderConfig{}, false
}

// IDs returns leader ids in configuration order.
func (c ClusterConfig) IDs() []string {
	ids := make([]string, 0, len(c.Leaders))
	for _, l := range c.Leaders {
		ids = append(ids, l.ID)
	}
	return ids
}

// Validate checks the leader table is usable.
func (c ClusterConfig) Validate() error {
	if len(c.Leaders) == 0 {
		return errors.New("no leaders configured")
	}
	seen := make(map[string]struct{}, len(c.Leaders))
	for _, l := range c.Leaders {
		if l.ID == "" {
			return errors.New("leader id cannot be empty")
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("duplicate leader id %q", l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	if len(c.LocalLeaders) == 0 {
		return errors.New("no local leader configured")
	}
	for _, id := range c.LocalLeaders {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("local leader %q is not in the leader table", id)
		}
	}
	return nil
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Cluster = loadCluster(v)

	cfg.Replication = ReplicationConfig{
		ConnectTimeout:   parseDuration(v.GetString("CONNECT_TIMEOUT"), 5*time.Second),
		OperationTimeout: parseDuration(v.GetString("OPERATION_TIMEOUT"), 10*time.Second),
		Parallel:         v.GetBool("REPLICATION_PARALLEL"),
		HealOnStartup:    v.GetBool("HEAL_ON_STARTUP"),
		HealInterval:     parseDuration(v.GetString("HEAL_INTERVAL"), 0),
		HealWorkers:      v.GetInt("HEAL_WORKERS"),
		HealRetries:      v.GetInt("HEAL_RETRIES"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("ENABLE_CATALOG_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Cluster.Validate(); err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}

	return cfg, nil
}

// loadCluster reads LEADERS=A,B and the LEADER_<ID>_* keys of every leader.
func loadCluster(v *viper.Viper) ClusterConfig {
	ids := splitAndTrim(v.GetString("LEADERS"))
	leaders := make([]LeaderConfig, 0, len(ids))
	for i, id := range ids {
		prefix := "LEADER_" + strings.ToUpper(id) + "_"
		db := DatabaseConfig{
			Host:         stringOr(v, prefix+"HOST", "localhost"),
			Port:         intOr(v, prefix+"PORT", 5432+i),
			User:         stringOr(v, prefix+"USER", "user_"+strings.ToLower(id)),
			Password:     stringOr(v, prefix+"PASSWORD", "pass_"+strings.ToLower(id)),
			Name:         stringOr(v, prefix+"NAME", "db_"+strings.ToLower(id)),
			SSLMode:      stringOr(v, prefix+"SSL_MODE", v.GetString("DB_SSL_MODE")),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		}
		leaders = append(leaders, LeaderConfig{ID: id, Database: db})
	}
	return ClusterConfig{
		Leaders:      leaders,
		LocalLeaders: splitAndTrim(v.GetString("LOCAL_LEADERS")),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("LEADERS", "A,B,C,D")
	v.SetDefault("LOCAL_LEADERS", "A")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("CONNECT_TIMEOUT", "5s")
	v.SetDefault("OPERATION_TIMEOUT", "10s")
	v.SetDefault("REPLICATION_PARALLEL", false)
	v.SetDefault("HEAL_ON_STARTUP", true)
	v.SetDefault("HEAL_INTERVAL", "")
	v.SetDefault("HEAL_WORKERS", 1)
	v.SetDefault("HEAL_RETRIES", 3)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ENABLE_CATALOG_CACHE", false)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func stringOr(v *viper.Viper, key, fallback string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return fallback
}

func intOr(v *viper.Viper, key string, fallback int) int {
	if v.IsSet(key) {
		if n := v.GetInt(key); n > 0 {
			return n
		}
	}
	return fallback
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
