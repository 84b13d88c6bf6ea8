package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	AI       AIConfig       `mapstructure:"ai"`
	Market   MarketConfig   `mapstructure:"market"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// StoreConfig configures the report record store. When ProjectID is empty or
// the remote store is unreachable at startup, the in-memory store is used.
type StoreConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	Collection  string `mapstructure:"collection"`
	Credentials string `mapstructure:"credentials"`
}

// StorageConfig configures where uploaded binaries are kept.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // local, s3
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// DatabaseConfig configures the market-data cache database.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	default:
		if c.Path == "" {
			return "data/finreporter.db"
		}
		return c.Path
	}
}

type UploadConfig struct {
	MaxSizeBytes     int64         `mapstructure:"max_size_bytes"`
	ChunkSizeBytes   int           `mapstructure:"chunk_size_bytes"`
	ProgressInterval int64         `mapstructure:"progress_interval"`
	ChunkReadTimeout time.Duration `mapstructure:"chunk_read_timeout"`
}

type ExtractConfig struct {
	LargeFileBytes int64 `mapstructure:"large_file_bytes"`
	MinBatchPages  int   `mapstructure:"min_batch_pages"`
	MaxBatchPages  int   `mapstructure:"max_batch_pages"`
}

type AIConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type MarketConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type PipelineConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// Load reads configuration from an optional config file, with environment
// variable overrides (FINREPORTER_* prefix). A .env file is loaded if present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix("FINREPORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env and defaults are enough to run
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Provider keys follow the conventional env names when the prefixed form is unset
	bindProviderKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.cors.allow_all_origins", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("store.project_id", "")
	v.SetDefault("store.collection", "reports")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/finreporter.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("upload.max_size_bytes", int64(100*1024*1024))
	v.SetDefault("upload.chunk_size_bytes", 64*1024)
	v.SetDefault("upload.progress_interval", int64(1024*1024))
	v.SetDefault("upload.chunk_read_timeout", 30*time.Second)

	v.SetDefault("extract.large_file_bytes", int64(10*1024*1024))
	v.SetDefault("extract.min_batch_pages", 5)
	v.SetDefault("extract.max_batch_pages", 20)

	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.max_input_chars", 30000)
	v.SetDefault("ai.timeout", 60*time.Second)

	v.SetDefault("market.base_url", "https://www.alphavantage.co")
	v.SetDefault("market.cache_ttl", 24*time.Hour)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 64)
}

func bindProviderKeys(v *viper.Viper) {
	_ = v.BindEnv("ai.api_key", "FINREPORTER_AI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("market.api_key", "FINREPORTER_MARKET_API_KEY", "ALPHA_VANTAGE_API_KEY")
	_ = v.BindEnv("store.credentials", "FINREPORTER_STORE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS")
}
