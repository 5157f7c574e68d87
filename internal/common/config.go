package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	LLM        LLMConfig        `yaml:"llm"`
	Processing ProcessingConfig `yaml:"processing"`
	Server     ServerConfig     `yaml:"server"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	UploadsDir     string `yaml:"uploads_dir"`
	ResultsDir     string `yaml:"results_dir"`
	CategoriesFile string `yaml:"categories_file"`
	JobsDB         string `yaml:"jobs_db"`
}

// LLMConfig holds settings for the chat-completions endpoint.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ProcessingConfig holds pipeline tuning knobs.
type ProcessingConfig struct {
	SplitBatchSize    int           `yaml:"split_batch_size"`
	ClassifyBatchSize int           `yaml:"classify_batch_size"`
	CategoryTopN      int           `yaml:"category_top_n"`
	Concurrency       int           `yaml:"concurrency"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBaseBackoff  time.Duration `yaml:"retry_base_backoff"`
	CommentColumn     string        `yaml:"comment_column"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	QueueSize     int    `yaml:"queue_size"`
	Workers       int    `yaml:"workers"`
}

// LoadConfig reads config.yaml (path overridable via CONFIG_PATH) if present,
// then applies environment-variable overrides on top.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Paths: PathsConfig{
			UploadsDir:     "uploads",
			ResultsDir:     "results",
			CategoriesFile: "data/categories.xlsx",
			JobsDB:         "data/jobs.db",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Temperature: 0.1,
			Timeout:     120 * time.Second,
		},
		Processing: ProcessingConfig{
			SplitBatchSize:    30,
			ClassifyBatchSize: 50,
			CategoryTopN:      10,
			Concurrency:       4,
			MaxRetries:        3,
			RetryBaseBackoff:  2 * time.Second,
			CommentColumn:     "valueText",
		},
		Server: ServerConfig{
			Addr:          ":8000",
			MaxUploadSize: 50 << 20,
			QueueSize:     64,
			Workers:       2,
		},
	}

	configPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, ConfigurationError("parsing "+configPath, err)
		}
	}

	cfg.Paths.UploadsDir = getEnv("UPLOADS_DIR", cfg.Paths.UploadsDir)
	cfg.Paths.ResultsDir = getEnv("RESULTS_DIR", cfg.Paths.ResultsDir)
	cfg.Paths.CategoriesFile = getEnv("CATEGORIES_FILE", cfg.Paths.CategoriesFile)
	cfg.Paths.JobsDB = getEnv("JOBS_DB", cfg.Paths.JobsDB)

	cfg.LLM.BaseURL = getEnv("LLM_API_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", cfg.LLM.Timeout)

	cfg.Processing.SplitBatchSize = getEnvAsInt("SPLIT_BATCH_SIZE", cfg.Processing.SplitBatchSize)
	cfg.Processing.ClassifyBatchSize = getEnvAsInt("CLASSIFY_BATCH_SIZE", cfg.Processing.ClassifyBatchSize)
	cfg.Processing.CategoryTopN = getEnvAsInt("CATEGORY_TOP_N", cfg.Processing.CategoryTopN)
	cfg.Processing.Concurrency = getEnvAsInt("LLM_CONCURRENCY", cfg.Processing.Concurrency)
	cfg.Processing.MaxRetries = getEnvAsInt("LLM_MAX_RETRIES", cfg.Processing.MaxRetries)
	cfg.Processing.CommentColumn = getEnv("COMMENT_COLUMN", cfg.Processing.CommentColumn)

	cfg.Server.Addr = getEnv("API_ADDR", cfg.Server.Addr)

	return cfg, nil
}

// Validate checks the settings a job cannot run without.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ConfigurationError("LLM_API_KEY is required", nil)
	}
	if c.Paths.CategoriesFile == "" {
		return ConfigurationError("CATEGORIES_FILE is required", nil)
	}
	if c.Processing.CommentColumn == "" {
		return ConfigurationError("COMMENT_COLUMN must not be empty", nil)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
