// Package completion wraps the Completion Service behind a small client.
// The service speaks the OpenAI chat-completion protocol through a
// LiteLLM-style proxy, so the client is built on go-openai with the base
// URL pointed at the proxy.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"mnemos/backend/pkg/errors"
	"mnemos/backend/pkg/logger"
	"go.uber.org/zap"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the conversation context sent to the service
type Message struct {
	Role       string
	Content    string
	ToolCallID string     // set on tool-result messages
	ToolCalls  []ToolCall // set on the assistant message that requested tools
}

// Tool represents a function the service may call
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a callable function
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is one function call requested by the service
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Response is the service's answer: final text, or a non-empty tool-call list
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Gateway is the generation capability the orchestrator depends on
type Gateway interface {
	Generate(ctx context.Context, messages []Message, tools []Tool) (*Response, error)
}

// Client handles communication with the Completion Service
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewClient creates a Completion Service client
func NewClient(baseURL, apiKey, modelID string, maxTokens int, temperature float64) *Client {
	// LiteLLM accepts a dummy key when none is configured
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &Client{
		client:      openai.NewClientWithConfig(config),
		model:       modelID,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		logger:      logger.Get(),
	}
}

// Model returns the configured model identifier
func (c *Client) Model() string {
	return c.model
}

// Generate sends the conversation context to the service and returns either
// a final text answer or the set of tool calls it requested
func (c *Client) Generate(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
		// ToolChoice defaults to "auto" when tools are provided
	}

	// Retry logic with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.Warn("Retrying completion request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		c.logger.Error("Completion request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", c.model),
		)
	}

	if err != nil {
		return nil, errors.NewCompletionFailed(c.model, maxRetries, err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.ErrCompletionEmpty
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:   choice.Message.Content,
		ToolCalls: make([]ToolCall, 0, len(choice.Message.ToolCalls)),
	}

	for _, tc := range choice.Message.ToolCalls {
		args, perr := parseJSONArguments(tc.Function.Arguments)
		if perr != nil {
			c.logger.Warn("Failed to parse tool call arguments",
				zap.String("tool_id", tc.ID),
				zap.Error(perr),
			)
			args = make(map[string]interface{})
		}
		response.ToolCalls = append(response.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	c.logger.Debug("Completion response received",
		zap.String("model", c.model),
		zap.Int("tool_calls", len(response.ToolCalls)),
		zap.Bool("has_content", response.Content != ""),
	)

	return response, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}
	return out
}

// parseJSONArguments parses the JSON string arguments into a map
func parseJSONArguments(jsonStr string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if jsonStr == "" {
		return make(map[string]interface{}), nil
	}

	if err := json.Unmarshal([]byte(jsonStr), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return args, nil
}
