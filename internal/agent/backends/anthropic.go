package backends

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/tool"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096
)

// ErrEmptyHistory is returned when a request carries no convertible turns.
var ErrEmptyHistory = errors.New("backends: empty history") //nolint:gochecknoglobals // sentinel error

// MessagesAPI is the subset of the Anthropic Messages service the backend uses.
// *anthropic.MessageService satisfies this interface.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

var _ MessagesAPI = (*anthropic.MessageService)(nil) //nolint:gochecknoglobals // compile-time check

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// AnthropicModel implements agent.Model on the Anthropic Messages API.
type AnthropicModel struct {
	api       MessagesAPI
	model     string
	maxTokens int64
}

var _ agent.Model = (*AnthropicModel)(nil) //nolint:gochecknoglobals // compile-time check

// NewAnthropicClient builds the SDK client for cfg.
func NewAnthropicClient(cfg AnthropicConfig) *anthropic.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &client
}

func NewAnthropicModel(api MessagesAPI, cfg AnthropicConfig) *AnthropicModel {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicModel{api: api, model: model, maxTokens: int64(maxTokens)}
}

// Complete sends one non-streaming Messages request.
func (m *AnthropicModel) Complete(ctx context.Context, req agent.CompletionRequest) (*agent.Completion, error) {
	messages := convertHistory(req.History)
	if len(messages) == 0 {
		return nil, fmt.Errorf("backends.AnthropicModel.Complete: %w", ErrEmptyHistory)
	}

	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("backends.AnthropicModel.Complete: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages:  messages,
		Tools:     tools,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := m.api.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("backends.AnthropicModel.Complete: %w", err)
	}

	return convertMessage(msg), nil
}

func convertMessage(msg *anthropic.Message) *agent.Completion {
	out := &agent.Completion{
		Usage: domain.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
		StopReason: string(msg.StopReason),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Segments = append(out.Segments, block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, domain.ToolInvocation{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	return out
}

// convertHistory maps turns to Anthropic messages. Tool results travel in a
// user message, consecutive messages of the same role are merged, and turns
// that would produce no content are dropped.
func convertHistory(turns []domain.Turn) []anthropic.MessageParam {
	var (
		result []anthropic.MessageParam
		role   anthropic.MessageParamRole
	)
	for _, turn := range turns {
		content, turnRole := convertTurn(turn)
		if len(content) == 0 {
			continue
		}
		if len(result) > 0 && role == turnRole {
			last := &result[len(result)-1]
			last.Content = append(last.Content, content...)
			continue
		}
		role = turnRole
		if turnRole == anthropic.MessageParamRoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result
}

func convertTurn(turn domain.Turn) ([]anthropic.ContentBlockParamUnion, anthropic.MessageParamRole) {
	var content []anthropic.ContentBlockParamUnion
	switch turn.Role {
	case domain.RoleAssistant:
		if turn.Text != "" {
			content = append(content, anthropic.NewTextBlock(turn.Text))
		}
		for _, call := range turn.ToolCalls {
			var input any = map[string]any{}
			if len(call.Input) > 0 {
				input = call.Input
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}
		return content, anthropic.MessageParamRoleAssistant

	case domain.RoleToolResult:
		for _, res := range turn.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(res.InvocationID, res.Content, res.IsError))
		}
		return content, anthropic.MessageParamRoleUser

	default:
		for _, img := range turn.Images {
			content = append(content, anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)))
		}
		if turn.Text != "" {
			content = append(content, anthropic.NewTextBlock(turn.Text))
		}
		return content, anthropic.MessageParamRoleUser
	}
}

func convertTools(tools []tool.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		raw := t.Schema
		if len(raw) == 0 {
			raw = json.RawMessage(`{"type":"object"}`)
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}

		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		if t.Description != "" {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		result = append(result, param)
	}
	return result, nil
}
