package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	ListenAddr string
	DBPath     string
	Store      string // "sqlite" or "memory"

	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	MaxTokens     int
	Temperature   float64
	LLMTimeout    time.Duration

	HistoryTurns  int
	HistoryTokens int

	LogLevel       string
	LogDevelopment bool
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":8100",
		DBPath:     "agency.db",
		Store:      "sqlite",

		Model:       "gpt-4o",
		MaxTokens:   500,
		Temperature: 0.7,
		LLMTimeout:  30 * time.Second,

		HistoryTurns:  20,
		HistoryTokens: 0,

		LogLevel: "info",
	}
}

// Load returns the defaults overridden by a .env file in the working
// directory (if any) and then by the process environment. A missing .env is
// fine; one that fails to parse is an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	var errs error

	if val := os.Getenv("LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("CHAT_STORE"); val != "" {
		c.Store = val
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		c.OpenAIBaseURL = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.Model = val
	}
	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		} else {
			errs = multierr.Append(errs, fmt.Errorf("LLM_MAX_TOKENS: %w", err))
		}
	}
	if val := os.Getenv("LLM_TEMPERATURE"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.Temperature = v
		} else {
			errs = multierr.Append(errs, fmt.Errorf("LLM_TEMPERATURE: %w", err))
		}
	}
	if val := os.Getenv("LLM_TIMEOUT"); val != "" {
		if v, err := time.ParseDuration(val); err == nil {
			c.LLMTimeout = v
		} else {
			errs = multierr.Append(errs, fmt.Errorf("LLM_TIMEOUT: %w", err))
		}
	}

	if val := os.Getenv("CHAT_HISTORY_TURNS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.HistoryTurns = v
		} else {
			errs = multierr.Append(errs, fmt.Errorf("CHAT_HISTORY_TURNS: %w", err))
		}
	}
	if val := os.Getenv("CHAT_HISTORY_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.HistoryTokens = v
		} else {
			errs = multierr.Append(errs, fmt.Errorf("CHAT_HISTORY_TOKENS: %w", err))
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("LOG_DEVELOPMENT"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.LogDevelopment = v
		} else {
			errs = multierr.Append(errs, fmt.Errorf("LOG_DEVELOPMENT: %w", err))
		}
	}

	return errs
}

// Validate reports every problem that would stop the server from starting.
func (c *Config) Validate() error {
	var errs error
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			errs = multierr.Append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	case "memory":
	default:
		errs = multierr.Append(errs, fmt.Errorf("CHAT_STORE must be sqlite or memory, got %q", c.Store))
	}
	if c.OpenAIAPIKey == "" {
		errs = multierr.Append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.MaxTokens <= 0 {
		errs = multierr.Append(errs, errors.New("LLM_MAX_TOKENS must be positive"))
	}
	if c.HistoryTurns < 0 || c.HistoryTokens < 0 {
		errs = multierr.Append(errs, errors.New("chat history limits must not be negative"))
	}
	if c.LLMTimeout < 0 {
		errs = multierr.Append(errs, errors.New("LLM_TIMEOUT must not be negative"))
	}
	return errs
}
