package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Uploads  UploadConfig
	Hints    HintsConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "sqlite" or "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
}

// UploadConfig holds upload handling configuration
type UploadConfig struct {
	Dir       string
	MaxBytes  int64
	WatchDirs []string
}

// HintsConfig holds category hint storage configuration
type HintsConfig struct {
	Backend string // "file" or "bolt"
	Path    string
}

// OCRConfig holds text-extraction configuration
type OCRConfig struct {
	TesseractPath string
	TesseractLang string
	DPI           int
	MaxPages      int
}

// LLMConfig holds structured-completion configuration
type LLMConfig struct {
	Provider    string // "openai" or "gemini"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
	GeminiKey   string
	GeminiModel string
}

// QueueConfig holds background worker pool configuration
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

var loadEnvOnce sync.Once

// LoadDotenv reads a .env file if one is present next to the binary or in the
// working directory. Missing files are fine; real env vars always win.
func LoadDotenv() {
	loadEnvOnce.Do(func() {
		for _, p := range []string{".env", "../.env"} {
			if _, err := os.Stat(p); err == nil {
				if err := godotenv.Load(p); err != nil {
					slog.Warn("failed to load env file", "path", p, "error", err)
				}
				return
			}
		}
	})
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	LoadDotenv()
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:costtracker.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		},
		Uploads: UploadConfig{
			Dir:       getEnv("UPLOAD_DIR", "./uploads"),
			MaxBytes:  int64(getEnvAsInt("UPLOAD_MAX_BYTES", 20<<20)),
			WatchDirs: splitList(getEnv("WATCH_DIRS", "")),
		},
		Hints: HintsConfig{
			Backend: getEnv("HINTS_BACKEND", "file"),
			Path:    getEnv("HINTS_PATH", "category_patterns.json"),
		},
		OCR: OCRConfig{
			TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 10),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat64("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			GeminiKey:   getEnv("GEMINI_API_KEY", ""),
			GeminiModel: getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return NewAppError(CodeConfig, "DB_DRIVER must be sqlite or postgres", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError(CodeConfig, "OPENAI_API_KEY is required", ErrInvalidInput)
		}
	case "gemini":
		if c.LLM.GeminiKey == "" {
			return NewAppError(CodeConfig, "GEMINI_API_KEY is required", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "LLM_PROVIDER must be openai or gemini", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	switch c.Hints.Backend {
	case "file", "bolt":
	default:
		return NewAppError(CodeConfig, "HINTS_BACKEND must be file or bolt", ErrInvalidInput)
	}
	return nil
}
