package app

import (
	"fmt"

	"github.com/MartinPaviot/Nareo-sub004/internal/platform/anthropic"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/langchain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/llm"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/openai"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime/bus"
)

type Clients struct {
	Generator llm.JSONGenerator
	// SSEBus is nil when REDIS_ADDR is unset; events then stay in process.
	SSEBus bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	gen, err := newGenerator(log, cfg)
	if err != nil {
		return Clients{}, err
	}

	var sseBus bus.Bus
	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(log, bus.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		sseBus = b
	}

	return Clients{Generator: gen, SSEBus: sseBus}, nil
}

func newGenerator(log *logger.Logger, cfg Config) (llm.JSONGenerator, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		c, err := anthropic.NewClient(log, anthropic.Config{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init anthropic client: %w", err)
		}
		return c, nil
	case ProviderLangchain:
		c, err := langchain.NewClient(log, langchain.Config{
			BaseURL: cfg.Langchain.BaseURL,
			APIKey:  cfg.Langchain.APIKey,
			Model:   cfg.Langchain.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("init langchain client: %w", err)
		}
		return c, nil
	default:
		c, err := openai.NewClient(log, openai.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			Timeout:    cfg.OpenAI.Timeout,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return c, nil
	}
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
}
