package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Schema policies understood by the backup writer.
const (
	SchemaPolicyUnion  = "union"
	SchemaPolicyStrict = "strict"
)

// ErrMissingFeedURL is returned by Validate when ENV_VACC was not configured.
var ErrMissingFeedURL = errors.New("ENV_VACC is not set")

// Config holds all configuration for a scraper run
type Config struct {
	FeedURL  string
	Webhooks []string

	BackupDir    string
	ReportPath   string
	LogPath      string
	LogVerbosity int
	Location     *time.Location
	SchemaPolicy string

	HTTPTimeout     time.Duration
	FetchRetries    int
	FetchBackoff    time.Duration
	FetchMaxBackoff time.Duration
	RunTimeout      time.Duration

	MetricsTextfile string

	NotifyUsername   string
	NotifyAvatarURL  string
	NotifyMaxContent int
	NotifyRate       float64
	OpenAIAPIKey     string
	OpenAIModel      string
}

// fileConfig is the optional YAML overlay named by SCRAPER_CONFIG. Secrets stay in the environment.
type fileConfig struct {
	FeedURL         string        `yaml:"feed_url"`
	Webhooks        []string      `yaml:"webhooks"`
	BackupDir       string        `yaml:"backup_dir"`
	ReportPath      string        `yaml:"report_path"`
	LogPath         string        `yaml:"log_path"`
	LogVerbosity    int           `yaml:"log_verbosity"`
	Timezone        string        `yaml:"timezone"`
	SchemaPolicy    string        `yaml:"schema_policy"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
	HTTP            struct {
		Timeout    time.Duration `yaml:"timeout"`
		Retries    int           `yaml:"retries"`
		Backoff    time.Duration `yaml:"backoff"`
		MaxBackoff time.Duration `yaml:"max_backoff"`
	} `yaml:"http"`
	Notify struct {
		Username    string  `yaml:"username"`
		AvatarURL   string  `yaml:"avatar_url"`
		MaxContent  int     `yaml:"max_content"`
		Rate        float64 `yaml:"rate"`
		OpenAIModel string  `yaml:"openai_model"`
	} `yaml:"notify"`
}

func defaults() fileConfig {
	var fc fileConfig
	fc.BackupDir = "backup"
	fc.ReportPath = "vacinacao.csv"
	fc.LogPath = "logs/scraping.log"
	fc.Timezone = "Local"
	fc.SchemaPolicy = SchemaPolicyUnion
	fc.RunTimeout = 2 * time.Minute
	fc.HTTP.Timeout = 20 * time.Second
	fc.HTTP.Retries = 3
	fc.HTTP.Backoff = 500 * time.Millisecond
	fc.HTTP.MaxBackoff = 5 * time.Second
	fc.Notify.Username = "Dados Vaccinacao"
	fc.Notify.MaxContent = 2000
	fc.Notify.Rate = 2
	fc.Notify.OpenAIModel = "gpt-5.1"
	return fc
}

// LoadConfig reads configuration from an optional YAML file and environment variables (.env file).
// Environment variables win over the YAML file, which wins over the built-in defaults.
func LoadConfig() (*Config, error) {
	// Load .env file. In production, env variables are often set directly.
	_ = godotenv.Load()

	fc := defaults()
	if path := getEnv("SCRAPER_CONFIG", ""); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("parse yaml %s: %w", path, err)
		}
	}

	cfg := &Config{
		FeedURL:         strings.TrimSpace(getEnv("ENV_VACC", fc.FeedURL)),
		BackupDir:       getEnv("BACKUP_DIR", fc.BackupDir),
		ReportPath:      getEnv("REPORT_PATH", fc.ReportPath),
		LogPath:         getEnv("LOG_PATH", fc.LogPath),
		SchemaPolicy:    strings.ToLower(getEnv("BACKUP_SCHEMA_POLICY", fc.SchemaPolicy)),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", fc.MetricsTextfile),
		NotifyUsername:  getEnv("NOTIFY_USERNAME", fc.Notify.Username),
		NotifyAvatarURL: getEnv("NOTIFY_AVATAR_URL", fc.Notify.AvatarURL),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", fc.Notify.OpenAIModel),
	}

	if raw, ok := os.LookupEnv("ENV_WEBHOOK"); ok {
		cfg.Webhooks = ParseWebhooks(raw)
	} else {
		cfg.Webhooks = ParseWebhooks(strings.Join(fc.Webhooks, ","))
	}

	var err error
	if cfg.LogVerbosity, err = getEnvInt("LOG_VERBOSITY", fc.LogVerbosity); err != nil {
		return nil, err
	}
	if cfg.FetchRetries, err = getEnvInt("FETCH_RETRIES", fc.HTTP.Retries); err != nil {
		return nil, err
	}
	if cfg.NotifyMaxContent, err = getEnvInt("NOTIFY_MAX_CONTENT", fc.Notify.MaxContent); err != nil {
		return nil, err
	}
	if cfg.NotifyRate, err = getEnvFloat("NOTIFY_RATE", fc.Notify.Rate); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", fc.HTTP.Timeout); err != nil {
		return nil, err
	}
	if cfg.FetchBackoff, err = getEnvDuration("FETCH_BACKOFF", fc.HTTP.Backoff); err != nil {
		return nil, err
	}
	if cfg.FetchMaxBackoff, err = getEnvDuration("FETCH_MAX_BACKOFF", fc.HTTP.MaxBackoff); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = getEnvDuration("RUN_TIMEOUT", fc.RunTimeout); err != nil {
		return nil, err
	}

	tz := getEnv("REPORT_TIMEZONE", fc.Timezone)
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("REPORT_TIMEZONE %q: %w", tz, err)
	}

	switch cfg.SchemaPolicy {
	case SchemaPolicyUnion, SchemaPolicyStrict:
	default:
		return nil, fmt.Errorf("BACKUP_SCHEMA_POLICY %q: want %q or %q", cfg.SchemaPolicy, SchemaPolicyUnion, SchemaPolicyStrict)
	}

	return cfg, nil
}

// Validate checks the settings a run cannot do without.
func (c *Config) Validate() error {
	if c.FeedURL == "" {
		return ErrMissingFeedURL
	}
	if c.FetchRetries < 1 {
		return fmt.Errorf("FETCH_RETRIES must be at least 1, got %d", c.FetchRetries)
	}
	return nil
}

// ParseWebhooks splits a comma separated list of URLs, dropping blanks.
func ParseWebhooks(raw string) []string {
	var out []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Helper function to get env var or return default
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
