package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8090"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	ModelsDir  string `env:"MODELS_DIR" envDefault:"./models"`
	ScratchDir string `env:"SCRATCH_DIR"`

	Provider        string        `env:"PROVIDER" envDefault:"remote"`
	UpstreamURL     string        `env:"UPSTREAM_URL" envDefault:"http://127.0.0.1:8000/v1/audio/transcriptions"`
	UpstreamModel   string        `env:"UPSTREAM_MODEL" envDefault:"whisper-1"`
	UpstreamAPIKey  string        `env:"UPSTREAM_API_KEY"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"120s"`

	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel  string `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`

	Language        string `env:"LANGUAGE"`
	MaxUploadBytes  int64  `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	MaxConcurrent   int    `env:"MAX_CONCURRENT" envDefault:"4"`
	StreamBatchSize int    `env:"STREAM_BATCH_SIZE" envDefault:"16"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	HTTPAddr  string
	LogLevel  string
	ModelsDir string
	Upstream  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.ModelsDir != "" {
		cfg.ModelsDir = overrides.ModelsDir
	}
	if overrides.Upstream != "" {
		cfg.UpstreamURL = overrides.Upstream
	}

	return cfg, nil
}
