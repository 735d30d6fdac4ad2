package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/db"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/backend"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/dedup"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/orchestrator"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderLangchain = "langchain"
)

type Config struct {
	HTTPAddr    string
	LogMode     string
	ServiceName string
	CORSOrigins []string

	Database db.Config

	RedisAddr    string
	RedisChannel string

	Provider  string
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Langchain LangchainConfig

	Generation GenerationConfig
	Stream     StreamConfig
	Worker     WorkerConfig

	MetricsEnabled bool
	Tracing        TracingConfig
}

type TracingConfig struct {
	Enabled     bool
	Environment string
	Endpoint    string
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

type LangchainConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type GenerationConfig struct {
	MinSourceChars      int
	SimilarityThreshold float64
	RunTimeout          time.Duration
	StaleAfter          time.Duration
	TypeConcurrency     int
}

type StreamConfig struct {
	PollInterval time.Duration
	MaxDuration  time.Duration
}

type WorkerConfig struct {
	// InProcess runs a worker pool inside the serve command.
	InProcess   bool
	Concurrency int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("SERVICE_NAME", "nareo")
	v.SetDefault("CORS_ORIGINS", "")

	v.SetDefault("DATABASE_DRIVER", db.DriverPostgres)
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_NAME", "nareo")
	v.SetDefault("SQLITE_PATH", "nareo.db")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_CHANNEL", "sse")

	v.SetDefault("GENERATION_PROVIDER", ProviderOpenAI)
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_TIMEOUT", 90*time.Second)
	v.SetDefault("OPENAI_MAX_RETRIES", 3)
	v.SetDefault("ANTHROPIC_MAX_TOKENS", 4096)

	v.SetDefault("GENERATION_MIN_SOURCE_CHARS", orchestrator.DefaultMinSourceChars)
	v.SetDefault("GENERATION_SIMILARITY_THRESHOLD", dedup.DefaultThreshold)
	v.SetDefault("GENERATION_RUN_TIMEOUT", orchestrator.DefaultRunTimeout)
	v.SetDefault("GENERATION_STALE_AFTER", orchestrator.DefaultStaleAfter)
	v.SetDefault("GENERATION_TYPE_CONCURRENCY", backend.DefaultTypeConcurrency)

	v.SetDefault("STREAM_POLL_INTERVAL", realtime.DefaultPollInterval)
	v.SetDefault("STREAM_MAX_DURATION", realtime.DefaultStreamMaxDuration)

	v.SetDefault("WORKER_IN_PROCESS", true)
	v.SetDefault("WORKER_CONCURRENCY", 4)

	v.SetDefault("METRICS_ENABLED", false)

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_HEADERS", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SAMPLER_RATIO", 0.1)
}

// LoadConfig reads an optional .env file into the process environment, then
// resolves every key from the environment with defaults.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return configFrom(v)
}

func configFrom(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		LogMode:     v.GetString("LOG_MODE"),
		ServiceName: v.GetString("SERVICE_NAME"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		Database: db.Config{
			Driver:     strings.ToLower(v.GetString("DATABASE_DRIVER")),
			Host:       v.GetString("POSTGRES_HOST"),
			Port:       v.GetString("POSTGRES_PORT"),
			User:       v.GetString("POSTGRES_USER"),
			Password:   v.GetString("POSTGRES_PASSWORD"),
			Name:       v.GetString("POSTGRES_NAME"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		RedisAddr:    strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisChannel: v.GetString("REDIS_CHANNEL"),
		Provider:     strings.ToLower(strings.TrimSpace(v.GetString("GENERATION_PROVIDER"))),
		OpenAI: OpenAIConfig{
			APIKey:     v.GetString("OPENAI_API_KEY"),
			BaseURL:    v.GetString("OPENAI_BASE_URL"),
			Model:      v.GetString("OPENAI_MODEL"),
			Timeout:    v.GetDuration("OPENAI_TIMEOUT"),
			MaxRetries: v.GetInt("OPENAI_MAX_RETRIES"),
		},
		Anthropic: AnthropicConfig{
			APIKey:    v.GetString("ANTHROPIC_API_KEY"),
			Model:     v.GetString("ANTHROPIC_MODEL"),
			MaxTokens: v.GetInt64("ANTHROPIC_MAX_TOKENS"),
		},
		Langchain: LangchainConfig{
			BaseURL: v.GetString("LANGCHAIN_BASE_URL"),
			APIKey:  v.GetString("LANGCHAIN_API_KEY"),
			Model:   v.GetString("LANGCHAIN_MODEL"),
		},
		Generation: GenerationConfig{
			MinSourceChars:      v.GetInt("GENERATION_MIN_SOURCE_CHARS"),
			SimilarityThreshold: v.GetFloat64("GENERATION_SIMILARITY_THRESHOLD"),
			RunTimeout:          v.GetDuration("GENERATION_RUN_TIMEOUT"),
			StaleAfter:          v.GetDuration("GENERATION_STALE_AFTER"),
			TypeConcurrency:     v.GetInt("GENERATION_TYPE_CONCURRENCY"),
		},
		Stream: StreamConfig{
			PollInterval: v.GetDuration("STREAM_POLL_INTERVAL"),
			MaxDuration:  v.GetDuration("STREAM_MAX_DURATION"),
		},
		Worker: WorkerConfig{
			InProcess:   v.GetBool("WORKER_IN_PROCESS"),
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
		},
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
		Tracing: TracingConfig{
			Enabled:     v.GetBool("OTEL_ENABLED"),
			Environment: v.GetString("APP_ENV"),
			Endpoint:    strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
			Headers:     parseHeaders(v.GetString("OTEL_EXPORTER_OTLP_HEADERS")),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			SampleRatio: v.GetFloat64("OTEL_SAMPLER_RATIO"),
		},
	}

	switch cfg.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderLangchain:
	default:
		return cfg, fmt.Errorf("unsupported GENERATION_PROVIDER %q", cfg.Provider)
	}
	switch cfg.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return cfg, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseHeaders reads "k1=v1,k2=v2"; malformed pairs are skipped.
func parseHeaders(raw string) map[string]string {
	var out map[string]string
	for _, part := range splitList(raw) {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}
