package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is the provider-neutral message shape sent to a model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMTask names which of the three model calls a request belongs to.
// Adapters may pick a different model per task.
type LLMTask string

const (
	TaskClassify LLMTask = "classify"
	TaskExtract  LLMTask = "extract"
	TaskAnswer   LLMTask = "answer"
)

type LLMRequest struct {
	Task     LLMTask
	System   []string
	Messages []ChatMessage
	// Temperature < 0 leaves the provider default in place.
	Temperature float32
	MaxTokens   int32
	TopP        float32
	// JSON asks the provider for a JSON object response where it supports one.
	JSON bool
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
