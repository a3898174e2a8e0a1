package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Database   Database   `mapstructure:"database"`
	Redis      Redis      `mapstructure:"redis"`
	Server     Server     `mapstructure:"server"`
	Worker     Worker     `mapstructure:"worker"`
	Schedule   Schedule   `mapstructure:"schedule"`
	Ingest     Ingest     `mapstructure:"ingest"`
	Embedding  Embedding  `mapstructure:"embedding"`
	Mistral    Mistral    `mapstructure:"mistral"`
	Gemini     Gemini     `mapstructure:"gemini"`
	Summariser Summariser `mapstructure:"summariser"`
	Search     Search     `mapstructure:"search"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	ConfigFile string `mapstructure:"config_file"`
}

// Database holds PostgreSQL connection configuration
type Database struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Redis holds broker configuration for the job queue and the event bus
type Redis struct {
	URL      string `mapstructure:"url"`
	QueueKey string `mapstructure:"queue_key"`
}

// Server holds HTTP server configuration
type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORS          `mapstructure:"cors"`
}

// CORS holds cross-origin configuration for the API
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Worker holds queue consumer configuration
type Worker struct {
	Concurrency int           `mapstructure:"concurrency"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
}

// Schedule holds the periodic producer intervals and job TTLs
type Schedule struct {
	IngestInterval time.Duration `mapstructure:"ingest_interval"`
	IngestTTL      time.Duration `mapstructure:"ingest_ttl"`
	TrendsInterval time.Duration `mapstructure:"trends_interval"`
	TrendsTTL      time.Duration `mapstructure:"trends_ttl"`
}

// Ingest holds feed and article fetching configuration
type Ingest struct {
	FeedTimeout    time.Duration `mapstructure:"feed_timeout"`
	ArticleTimeout time.Duration `mapstructure:"article_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// Embedding holds the default embedding space and kNN window configuration
type Embedding struct {
	Space     string        `mapstructure:"space"`
	Provider  string        `mapstructure:"provider"`
	Dims      int           `mapstructure:"dims"`
	Window    time.Duration `mapstructure:"window"`
	Neighbors int           `mapstructure:"neighbors"`
}

// Mistral holds Mistral API configuration
type Mistral struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	EmbedModel string        `mapstructure:"embed_model"`
	ChatModel  string        `mapstructure:"chat_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Gemini holds the alternative summariser engine configuration
type Gemini struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Summariser holds cluster summarisation configuration
type Summariser struct {
	Engine         string `mapstructure:"engine"`
	Lang           string `mapstructure:"lang"`
	MinClusterSize int    `mapstructure:"min_cluster_size"`
}

// Search holds Meilisearch configuration
type Search struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
	Index  string `mapstructure:"index"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".veille")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvPrefix("VEILLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if viper.ConfigFileUsed() != "" {
		config.App.ConfigFile = viper.ConfigFileUsed()
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")

	// Database defaults: small pool with overflow headroom, hourly recycling
	viper.SetDefault("database.max_open_conns", 15)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	// Redis defaults
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.queue_key", "veille:jobs")

	// Server defaults: write timeout stays zero, SSE streams are long-lived
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "0s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.cors.enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})

	// Worker defaults
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.job_timeout", "30m")

	// Schedule defaults
	viper.SetDefault("schedule.ingest_interval", "900s")
	viper.SetDefault("schedule.ingest_ttl", "600s")
	viper.SetDefault("schedule.trends_interval", "300s")
	viper.SetDefault("schedule.trends_ttl", "240s")

	// Ingest defaults
	viper.SetDefault("ingest.feed_timeout", "10s")
	viper.SetDefault("ingest.article_timeout", "15s")
	viper.SetDefault("ingest.user_agent", "veille-ingestion-bot/0.1")

	// Embedding defaults
	viper.SetDefault("embedding.space", "mistral-embed")
	viper.SetDefault("embedding.provider", "mistral")
	viper.SetDefault("embedding.dims", 1024)
	viper.SetDefault("embedding.window", "48h")
	viper.SetDefault("embedding.neighbors", 5)

	// Mistral defaults
	viper.SetDefault("mistral.base_url", "https://api.mistral.ai")
	viper.SetDefault("mistral.embed_model", "mistral-embed")
	viper.SetDefault("mistral.chat_model", "mistral-large-latest")
	viper.SetDefault("mistral.timeout", "60s")

	// Gemini defaults
	viper.SetDefault("gemini.model", "gemini-flash-lite-latest")

	// Summariser defaults
	viper.SetDefault("summariser.engine", "mistral")
	viper.SetDefault("summariser.lang", "fr")
	viper.SetDefault("summariser.min_cluster_size", 3)

	// Search defaults
	viper.SetDefault("search.host", "http://localhost:7700")
	viper.SetDefault("search.index", "articles")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"POSTGRES_URL",
	})

	bindEnvKeys("redis.url", []string{
		"REDIS_URL",
	})

	bindEnvKeys("mistral.api_key", []string{
		"MISTRAL_API_KEY",
	})

	bindEnvKeys("gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
	})

	bindEnvKeys("search.host", []string{
		"MEILI_HOST",
	})

	bindEnvKeys("search.api_key", []string{
		"MEILI_API_KEY",
		"MEILI_MASTER_KEY",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"VEILLE_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// Validate ensures the configuration required by the pipeline is present.
// Missing broker or credential settings are fatal at process startup.
func (c *Config) Validate() error {
	var errors []string

	if c.Database.URL == "" {
		errors = append(errors, "database URL is required. Set DATABASE_URL or database.url in config file")
	}

	if c.Redis.URL == "" {
		errors = append(errors, "redis URL is required. Set REDIS_URL or redis.url in config file")
	}

	if c.Mistral.APIKey == "" {
		errors = append(errors, "Mistral API key is required. Set MISTRAL_API_KEY or mistral.api_key in config file")
	}

	if c.Summariser.Engine == "gemini" && c.Gemini.APIKey == "" {
		errors = append(errors, "Gemini API key is required when summariser.engine is gemini. Set GEMINI_API_KEY")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App               { return Get().App }
func GetDatabase() Database     { return Get().Database }
func GetRedis() Redis           { return Get().Redis }
func GetServer() Server         { return Get().Server }
func GetWorker() Worker         { return Get().Worker }
func GetSchedule() Schedule     { return Get().Schedule }
func GetIngest() Ingest         { return Get().Ingest }
func GetEmbedding() Embedding   { return Get().Embedding }
func GetMistral() Mistral       { return Get().Mistral }
func GetGemini() Gemini         { return Get().Gemini }
func GetSummariser() Summariser { return Get().Summariser }
func GetSearch() Search         { return Get().Search }

// Specific convenience getters for frequently accessed values
func GetDatabaseURL() string   { return Get().Database.URL }
func GetRedisURL() string      { return Get().Redis.URL }
func GetMistralAPIKey() string { return Get().Mistral.APIKey }
func IsDebugMode() bool        { return Get().App.Debug }

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
