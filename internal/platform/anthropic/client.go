// Package anthropic generates structured JSON with Claude models by forcing
// a single tool call whose input schema is the requested schema.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/llm"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/promptstyle"
)

const providerName = "anthropic"

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int64
	MaxRetries int
	Timeout    time.Duration
}

type Client struct {
	log       *logger.Logger
	sdk       sdk.Client
	model     string
	maxTokens int64
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(sdk.ModelClaude4Sonnet20250514)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{
		log:       log.With("service", "AnthropicClient", "model", model),
		sdk:       sdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *Client) Name() string { return providerName }

// ToolSchema converts a JSON Schema object into a tool input schema.
func ToolSchema(schema map[string]any) sdk.ToolInputSchemaParam {
	return sdk.ToolInputSchemaParam{
		Properties: llm.Properties(schema),
	}
}

func (c *Client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	start := time.Now()
	msg, err := c.sdk.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: promptstyle.ApplySystem(system, "tool")}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
		Tools: []sdk.ToolUnionParam{{
			OfTool: &sdk.ToolParam{
				Name:        schemaName,
				Description: sdk.String("Record the generated " + schemaName),
				InputSchema: ToolSchema(schema),
			},
		}},
		ToolChoice: sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: schemaName},
		},
	})
	if err != nil {
		observability.Current().ObserveLLMRequest(providerName, c.model, statusFromErr(err), time.Since(start), 0, 0)
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	observability.Current().ObserveLLMRequest(providerName, c.model, "200", time.Since(start), int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens))

	for _, block := range msg.Content {
		toolUse, ok := block.AsAny().(sdk.ToolUseBlock)
		if !ok || toolUse.Name != schemaName {
			continue
		}
		return decodeToolInput(toolUse.Input)
	}
	c.log.Warn("response carried no tool call", "stop_reason", string(msg.StopReason))
	return nil, llm.ErrNoStructuredOutput
}

func decodeToolInput(input any) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal tool input: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode tool input: %w", err)
	}
	if out == nil {
		return nil, llm.ErrNoStructuredOutput
	}
	return out, nil
}

func statusFromErr(err error) string {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
