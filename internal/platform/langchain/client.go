// Package langchain generates structured JSON through langchaingo models.
// It targets OpenAI-compatible gateways (vLLM, Ollama, LiteLLM) with
// required tool calling.
package langchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/llm"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/promptstyle"
)

const providerName = "langchain"

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

type Client struct {
	log         *logger.Logger
	model       llms.Model
	modelName   string
	temperature float64
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		return nil, fmt.Errorf("missing LANGCHAIN_MODEL")
	}
	opts := []lcopenai.Option{lcopenai.WithModel(modelName)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, lcopenai.WithBaseURL(base))
	}
	token := strings.TrimSpace(cfg.APIKey)
	if token == "" {
		// Local gateways accept any bearer token; the SDK requires one.
		token = "unused"
	}
	opts = append(opts, lcopenai.WithToken(token))
	model, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain openai: %w", err)
	}
	return NewWithModel(log, model, modelName, cfg.Temperature)
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(log *logger.Logger, model llms.Model, modelName string, temperature float64) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if model == nil {
		return nil, fmt.Errorf("model required")
	}
	return &Client{
		log:         log.With("service", "LangchainClient", "model", modelName),
		model:       model,
		modelName:   modelName,
		temperature: temperature,
	}, nil
}

func (c *Client) Name() string { return providerName }

func (c *Client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	tools := []llms.Tool{{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        schemaName,
			Description: "Record the generated " + schemaName,
			Parameters:  schema,
		},
	}}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, promptstyle.ApplySystem(system, "tool")),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTools(tools),
		llms.WithToolChoice("required"),
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		observability.Current().ObserveLLMRequest(providerName, c.modelName, "error", time.Since(start), 0, 0)
		return nil, fmt.Errorf("langchain generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		observability.Current().ObserveLLMRequest(providerName, c.modelName, "empty", time.Since(start), 0, 0)
		return nil, llm.ErrNoStructuredOutput
	}
	choice := resp.Choices[0]
	observability.Current().ObserveLLMRequest(providerName, c.modelName, "200", time.Since(start),
		intInfo(choice.GenerationInfo, "PromptTokens"), intInfo(choice.GenerationInfo, "CompletionTokens"))

	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil || call.FunctionCall.Name != schemaName {
			continue
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &out); err != nil {
			return nil, fmt.Errorf("decode tool arguments: %w", err)
		}
		return out, nil
	}

	// Some gateways ignore tool_choice and answer with plain JSON content.
	if content := strings.TrimSpace(choice.Content); strings.HasPrefix(content, "{") {
		var out map[string]any
		if err := json.Unmarshal([]byte(content), &out); err == nil {
			c.log.Debug("tool call missing; parsed JSON content instead")
			return out, nil
		}
	}
	return nil, llm.ErrNoStructuredOutput
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
