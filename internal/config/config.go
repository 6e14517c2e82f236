package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the quiz server.
type Config struct {
	DBDriver           string
	DBPath             string
	DatabaseURL        string
	ServerPort         int
	LogLevel           string
	LLMEndpoint        string
	LLMAPIKey          string
	LLMModels          []string
	LLMTimeout         time.Duration
	FetchTimeout       time.Duration
	QuizPromptPath     string
	StoreRawHTML       bool
	SentryDSN          string
	Environment        string
	RateLimitBurst     int
	RateLimitRPS       float64
	RateLimitClientTTL time.Duration
	ShutdownGrace      time.Duration
}

const (
	defaultDBDriver           = "sqlite"
	defaultDBPath             = "./data/wikiquiz.db"
	defaultServerPort         = 8000
	defaultLogLevel           = "info"
	defaultEnvironment        = "development"
	defaultLLMModel           = "llama-3.1-8b-instant"
	defaultLLMTimeout         = 60 * time.Second
	defaultFetchTimeout       = 10 * time.Second
	defaultQuizPromptPath     = "./prompts/quiz_prompt.txt"
	defaultStoreRawHTML       = true
	defaultRateLimitBurst     = 10
	defaultRateLimitRPS       = 1.0
	defaultRateLimitClientTTL = 10 * time.Minute
	defaultShutdownGrace      = 10 * time.Second
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", defaultDBDriver)),
		DBPath:         getEnv("DB_PATH", defaultDBPath),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LogLevel:       getEnv("LOG_LEVEL", defaultLogLevel),
		LLMEndpoint:    os.Getenv("LLM_ENDPOINT"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModels:      []string{defaultLLMModel},
		QuizPromptPath: getEnv("QUIZ_PROMPT_PATH", defaultQuizPromptPath),
		SentryDSN:      os.Getenv("SENTRY_DSN"),
		Environment:    getEnv("ENV", defaultEnvironment),
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, eris.Errorf("invalid DB_DRIVER value: %s", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, eris.New("DATABASE_URL is required when DB_DRIVER is postgres")
	}

	if modelsJSON := os.Getenv("LLM_MODELS"); modelsJSON != "" {
		models, err := parseModels(modelsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "parsing LLM_MODELS")
		}
		cfg.LLMModels = models
	}

	var err error

	if cfg.ServerPort, err = getInt("SERVER_PORT", defaultServerPort); err != nil {
		return nil, err
	}
	if cfg.LLMTimeout, err = getDuration("LLM_TIMEOUT", defaultLLMTimeout); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getDuration("FETCH_TIMEOUT", defaultFetchTimeout); err != nil {
		return nil, err
	}
	if cfg.StoreRawHTML, err = getBool("STORE_RAW_HTML", defaultStoreRawHTML); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", defaultRateLimitBurst); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", defaultRateLimitRPS); err != nil {
		return nil, err
	}
	if cfg.RateLimitClientTTL, err = getDuration("RATE_LIMIT_CLIENT_TTL", defaultRateLimitClientTTL); err != nil {
		return nil, err
	}
	if cfg.ShutdownGrace, err = getDuration("SHUTDOWN_GRACE", defaultShutdownGrace); err != nil {
		return nil, err
	}

	return cfg, nil
}

// QuizModel is the model used for quiz generation.
func (c *Config) QuizModel() string {
	if len(c.LLMModels) == 0 {
		return defaultLLMModel
	}
	return c.LLMModels[0]
}

// TopicsModel is the model used for related-topic suggestions. It falls back to the quiz model.
func (c *Config) TopicsModel() string {
	if len(c.LLMModels) > 1 {
		return c.LLMModels[1]
	}
	return c.QuizModel()
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, strconv.Itoa(fallback))
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := getEnv(key, strconv.FormatFloat(fallback, 'f', -1, 64))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, strconv.FormatBool(fallback))
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

// getDuration accepts Go duration strings ("45s") or a plain number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, fallback.String())
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if seconds <= 0 {
			return 0, eris.Errorf("invalid %s value: %s", key, raw)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	if value <= 0 {
		return 0, eris.Errorf("invalid %s value: %s", key, raw)
	}
	return value, nil
}

func parseModels(raw string) ([]string, error) {
	// Accept either a JSON array of strings or an object with a `models` field.
	var arrayInput []string
	if err := json.Unmarshal([]byte(raw), &arrayInput); err == nil {
		return cleanModels(arrayInput)
	}

	var objectInput struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal([]byte(raw), &objectInput); err != nil {
		return nil, eris.Wrap(err, "decoding JSON")
	}

	return cleanModels(objectInput.Models)
}

func cleanModels(models []string) ([]string, error) {
	cleaned := make([]string, 0, len(models))
	for _, model := range models {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	if len(cleaned) == 0 {
		return nil, eris.New("models list is empty")
	}
	return cleaned, nil
}
