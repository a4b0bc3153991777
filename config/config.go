package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shouni/go-utils/envutil"
	"gopkg.in/yaml.v3"
)

const (
	RemoverGemini      = "gemini"
	RemoverEndpoint    = "endpoint"
	RemoverPassthrough = "passthrough"
)

const (
	DefaultPort           = "8080"
	DefaultConfigFile     = "config.yaml"
	DefaultGeminiModel    = "gemini-2.5-flash-image"
	DefaultRequestTimeout = 2 * time.Minute
	DefaultRateInterval   = 2 * time.Second
	DefaultRateBurst      = 2
	DefaultSessionTTL     = 30 * time.Minute
	DefaultSweepCron      = "@every 1m"
	DefaultMaxUploadBytes = 10 << 20
)

// Config 服务配置：默认值 < config.yaml < .env < 环境变量
type Config struct {
	Port string `yaml:"port"`

	// 抠图服务: gemini | endpoint | passthrough
	Remover       string `yaml:"remover"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	GeminiBaseURL string `yaml:"gemini_base_url"`
	RembgEndpoint string `yaml:"rembg_endpoint"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateInterval   time.Duration `yaml:"rate_interval"`
	RateBurst      int           `yaml:"rate_burst"`

	SessionTTL       time.Duration `yaml:"session_ttl"`
	SessionSweepCron string        `yaml:"session_sweep_cron"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`

	// 为空时使用内置的指令模板，%s 处替换为用户描述
	InstructionTemplate string `yaml:"instruction_template"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() *Config {
	return &Config{
		Port:             DefaultPort,
		Remover:          RemoverGemini,
		GeminiModel:      DefaultGeminiModel,
		RequestTimeout:   DefaultRequestTimeout,
		RateInterval:     DefaultRateInterval,
		RateBurst:        DefaultRateBurst,
		SessionTTL:       DefaultSessionTTL,
		SessionSweepCron: DefaultSweepCron,
		MaxUploadBytes:   DefaultMaxUploadBytes,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load 读取配置文件（不存在时跳过）、.env 和环境变量，并校验
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, skipped", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	// .env 不会覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = envutil.GetEnv("PORT", c.Port)
	c.Remover = envutil.GetEnv("REMOVER", c.Remover)
	c.GeminiAPIKey = envutil.GetEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = envutil.GetEnv("GEMINI_MODEL", c.GeminiModel)
	c.GeminiBaseURL = envutil.GetEnv("GEMINI_BASE_URL", c.GeminiBaseURL)
	c.RembgEndpoint = envutil.GetEnv("REMBG_ENDPOINT", c.RembgEndpoint)
	c.SessionSweepCron = envutil.GetEnv("SESSION_SWEEP_CRON", c.SessionSweepCron)
	c.InstructionTemplate = envutil.GetEnv("INSTRUCTION_TEMPLATE", c.InstructionTemplate)
	c.LogLevel = envutil.GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envutil.GetEnv("LOG_FORMAT", c.LogFormat)

	var err error
	if c.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.RateInterval, err = envDuration("RATE_INTERVAL", c.RateInterval); err != nil {
		return err
	}
	if c.SessionTTL, err = envDuration("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}

	burst, err := strconv.Atoi(envutil.GetEnv("RATE_BURST", strconv.Itoa(c.RateBurst)))
	if err != nil {
		return fmt.Errorf("RATE_BURST: %w", err)
	}
	c.RateBurst = burst

	maxUpload, err := strconv.ParseInt(envutil.GetEnv("MAX_UPLOAD_BYTES", strconv.FormatInt(c.MaxUploadBytes, 10)), 10, 64)
	if err != nil {
		return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
	}
	c.MaxUploadBytes = maxUpload

	return nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(envutil.GetEnv(key, fallback.String()))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.Remover {
	case RemoverGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required when REMOVER=gemini")
		}
	case RemoverEndpoint:
		if c.RembgEndpoint == "" {
			return errors.New("REMBG_ENDPOINT is required when REMOVER=endpoint")
		}
	case RemoverPassthrough:
	default:
		return fmt.Errorf("unknown REMOVER %q", c.Remover)
	}

	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
