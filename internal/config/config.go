package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var (
	ErrMissingCredentials = errors.New("either GOOGLE_API_KEY or GOOGLE_CLOUD_PROJECT/GOOGLE_CLOUD_LOCATION must be set")
	ErrExclusiveGemini    = errors.New("GOOGLE_API_KEY and GOOGLE_CLOUD_PROJECT/GOOGLE_CLOUD_LOCATION are mutually exclusive")
	ErrIncompleteVertex   = errors.New("both GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION must be set for Vertex AI")
	ErrMissingOpenAIKey   = errors.New("OPENAI_API_KEY must be set for the openai provider")
)

type Config struct {
	Server      ServerConfig
	Model       ModelConfig
	Gemini      GeminiConfig
	OpenAI      OpenAIConfig
	Upload      UploadConfig
	RedisConfig RedisConfig
	CacheEnable bool `env:"CACHE_ENABLE"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"5000"`
	Timeout         time.Duration `env:"SERVER_TIMEOUT" envDefault:"2m"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ThrottleLimit   int           `env:"SERVER_THROTTLE_LIMIT" envDefault:"50"`
}

type ModelConfig struct {
	Provider          string        `env:"MODEL_PROVIDER" envDefault:"gemini"`
	Name              string        `env:"MODEL_NAME" envDefault:"gemini-2.0-flash-exp"`
	Timeout           time.Duration `env:"MODEL_TIMEOUT" envDefault:"0s"`
	MaxRetries        uint64        `env:"MODEL_MAX_RETRIES" envDefault:"0"`
	RetryInitialDelay time.Duration `env:"MODEL_RETRY_INITIAL_DELAY" envDefault:"1s"`
	RetryMaxDelay     time.Duration `env:"MODEL_RETRY_MAX_DELAY" envDefault:"30s"`
}

// GeminiConfig selects the Gemini API (APIKey) or Vertex AI (Project+Location).
type GeminiConfig struct {
	APIKey   string `env:"GOOGLE_API_KEY"`
	Project  string `env:"GOOGLE_CLOUD_PROJECT"`
	Location string `env:"GOOGLE_CLOUD_LOCATION"`
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
}

type UploadConfig struct {
	Dir         string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxBytes    int64  `env:"UPLOAD_MAX_BYTES" envDefault:"20971520"`
	MaxPDFPages int    `env:"UPLOAD_MAX_PDF_PAGES" envDefault:"0"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TTL" envDefault:"10m"`
}

func (g GeminiConfig) IsVertexAI() bool {
	return g.Project != "" && g.Location != ""
}

func (g GeminiConfig) Validate() error {
	hasVertex := g.Project != "" || g.Location != ""
	if hasVertex && g.APIKey != "" {
		return ErrExclusiveGemini
	}
	if hasVertex && !g.IsVertexAI() {
		return ErrIncompleteVertex
	}
	if !hasVertex && g.APIKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderGemini:
		return c.Gemini.Validate()
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return ErrMissingOpenAIKey
		}
		return nil
	default:
		return fmt.Errorf("unknown MODEL_PROVIDER %q", c.Model.Provider)
	}
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
