package agent

import (
	"context"

	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/tool"
)

// CompletionRequest is one call to the language model.
type CompletionRequest struct {
	System  string
	History []domain.Turn
	Tools   []tool.Tool
}

// Completion is the model's answer to a CompletionRequest: zero or more text
// segments and zero or more tool invocations, in the order produced.
type Completion struct {
	Segments   []string
	ToolCalls  []domain.ToolInvocation
	Usage      domain.Usage
	StopReason string
}

// Model is a language model that can call tools.
type Model interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ToolExecutor runs tool invocations by name.
// *tool.Registry satisfies this interface.
type ToolExecutor interface {
	Execute(ctx context.Context, inv domain.ToolInvocation) (string, error)
	Definitions() []tool.Tool
}
