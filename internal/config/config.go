package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Registry RegistryConfig `mapstructure:"registry"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Security SecurityConfig `mapstructure:"security"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig carries the thin HTTP front the core is mounted behind.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// RegistryConfig points at the persisted tenant registry database.
type RegistryConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PoolConfig carries the connection-manager knobs.
type PoolConfig struct {
	DefaultSize        int           `mapstructure:"default_size"`
	DefaultOverflow    int           `mapstructure:"default_overflow"`
	WaitTimeout        time.Duration `mapstructure:"wait_timeout"`
	IdleSweepInterval  time.Duration `mapstructure:"idle_sweep_interval"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	HealthInterval     time.Duration `mapstructure:"health_interval"`
	DegradedErrorCount int           `mapstructure:"degraded_error_count"`
	FailedErrorCount   int           `mapstructure:"failed_error_count"`
	BreakerFailures    int           `mapstructure:"breaker_failures"`
	BreakerRecovery    time.Duration `mapstructure:"breaker_recovery"`
}

// SecurityConfig carries the gate's tunable parameters. The thresholds are
// deliberately configuration, not invariants; deny-by-default is the invariant.
type SecurityConfig struct {
	UserRatePerMinute    int            `mapstructure:"user_rate_per_minute"`
	AddressRatePerMinute int            `mapstructure:"address_rate_per_minute"`
	RiskScoreThreshold   int            `mapstructure:"risk_score_threshold"`
	MaxQueryLength       int            `mapstructure:"max_query_length"`
	ComplexityCeilings   map[string]int `mapstructure:"complexity_ceilings"`
	// TablePolicy replaces the built-in readable-table set per
	// role and industry. Pairs not listed keep the built-in defaults.
	TablePolicy map[string]map[string][]string `mapstructure:"table_policy"`
}

// CompilerConfig carries the parser's confidence tuning.
type CompilerConfig struct {
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	DefaultLimit    int     `mapstructure:"default_limit"`
}

// SchemaConfig carries the snapshot cache tuning.
type SchemaConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	ConsoleOutput bool   `mapstructure:"console_output"`
	FileOutput    bool   `mapstructure:"file_output"`
	MaxSizeMB     int    `mapstructure:"max_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups"`
	Compress      bool   `mapstructure:"compress"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults plus environment.
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")

	// Registry defaults
	viper.SetDefault("registry.host", "localhost")
	viper.SetDefault("registry.port", "3306")
	viper.SetDefault("registry.database", "tenant_registry")
	viper.SetDefault("registry.username", "gateway_user")

	// Pool defaults
	viper.SetDefault("pool.default_size", 10)
	viper.SetDefault("pool.default_overflow", 5)
	viper.SetDefault("pool.wait_timeout", "30s")
	viper.SetDefault("pool.idle_sweep_interval", "5m")
	viper.SetDefault("pool.idle_timeout", "30m")
	viper.SetDefault("pool.health_interval", "1m")
	viper.SetDefault("pool.degraded_error_count", 5)
	viper.SetDefault("pool.failed_error_count", 10)
	viper.SetDefault("pool.breaker_failures", 5)
	viper.SetDefault("pool.breaker_recovery", "60s")

	// Security defaults
	viper.SetDefault("security.user_rate_per_minute", 30)
	viper.SetDefault("security.address_rate_per_minute", 50)
	viper.SetDefault("security.risk_score_threshold", 10)
	viper.SetDefault("security.max_query_length", 10000)
	viper.SetDefault("security.complexity_ceilings", map[string]int{
		"guest":         3,
		"viewer":        5,
		"developer":     10,
		"business_user": 15,
		"manager":       20,
		"analyst":       30,
		"admin":         50,
	})

	// Compiler defaults
	viper.SetDefault("compiler.confidence_floor", 0.3)
	viper.SetDefault("compiler.default_limit", 100)

	// Schema cache defaults
	viper.SetDefault("schema.cache_ttl", "1h")
	viper.SetDefault("schema.cleanup_interval", "10m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.path", "./logs")
	viper.SetDefault("logging.console_output", true)
	viper.SetDefault("logging.file_output", false)
	viper.SetDefault("logging.max_size_mb", 100)
	viper.SetDefault("logging.max_backups", 7)
	viper.SetDefault("logging.compress", true)
}
