package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type llmFunc func(ctx context.Context, req LLMRequest) (LLMResponse, error)

func (f llmFunc) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	return f(ctx, req)
}

type fakeOpenAIAPI struct {
	got  openai.ChatCompletionNewParams
	resp *openai.ChatCompletion
	err  error
}

func (f *fakeOpenAIAPI) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.got = body
	return f.resp, f.err
}

func TestOpenAIClient_ModelPerTask(t *testing.T) {
	api := &fakeOpenAIAPI{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  {\"intent\":\"info\"}  "},
			FinishReason: "stop",
		}},
		Usage: openai.CompletionUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}}
	client := NewOpenAIClientWithAPI(api, "gpt-5", "gpt-4o-mini")

	resp, err := client.Complete(context.Background(), LLMRequest{
		Task:        TaskClassify,
		System:      []string{"classify"},
		Messages:    []ChatMessage{{Role: ChatRoleAssistant, Content: "hi"}, {Role: ChatRoleUser, Content: "tuition?"}},
		Temperature: -1,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"info"}`, resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-5", string(api.got.Model))
	assert.Len(t, api.got.Messages, 3)
	require.NotNil(t, api.got.ResponseFormat.OfJSONObject)

	_, err = client.Complete(context.Background(), LLMRequest{Task: TaskAnswer, System: []string{"answer"}})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", string(api.got.Model))
	assert.Nil(t, api.got.ResponseFormat.OfJSONObject)
}

func TestOpenAIClient_Errors(t *testing.T) {
	api := &fakeOpenAIAPI{err: errors.New("429")}
	client := NewOpenAIClientWithAPI(api, "", "")

	_, err := client.Complete(context.Background(), LLMRequest{System: []string{"x"}})
	assert.ErrorContains(t, err, "429")

	_, err = client.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)

	_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: "tool", Content: "x"}}})
	assert.ErrorContains(t, err, "unsupported role")

	api.err = nil
	api.resp = &openai.ChatCompletion{}
	_, err = client.Complete(context.Background(), LLMRequest{System: []string{"x"}})
	assert.ErrorContains(t, err, "no choices")
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "gpt-5", "gpt-4o-mini")
	assert.Error(t, err)
}

type fakeConverseAPI struct {
	got *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
	err error
}

func (f *fakeConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.got = params
	return f.out, f.err
}

func TestBedrockLLMClient_Converse(t *testing.T) {
	api := &fakeConverseAPI{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Tuition is $12,000 per year."}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(20), OutputTokens: aws.Int32(8), TotalTokens: aws.Int32(28)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System: []string{"answer from faq"},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "hi"},
			{Role: ChatRoleUser, Content: "how much is tuition?"},
		},
		Temperature: 0,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Tuition is $12,000 per year.", resp.Text)
	assert.Equal(t, int32(28), resp.Usage.TotalTokens)

	require.NotNil(t, api.got)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.got.ModelId))
	require.Len(t, api.got.Messages, 1, "consecutive user turns are merged")
	assert.Len(t, api.got.Messages[0].Content, 2)
	assert.Len(t, api.got.System, 2, "json mode adds an instruction")
	require.NotNil(t, api.got.InferenceConfig)
	assert.Equal(t, float32(0), aws.ToFloat32(api.got.InferenceConfig.Temperature))
}

func TestBedrockLLMClient_RequiresModel(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverseAPI{}, " ")
	_, err := client.Complete(context.Background(), LLMRequest{System: []string{"x"}})
	assert.Error(t, err)
}

func TestBedrockLLMClient_EmptyOutput(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverseAPI{out: &bedrockruntime.ConverseOutput{}}, "model")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	assert.Error(t, err)
}

type flakyLLM struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
}

func (f *flakyLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return LLMResponse{}, f.err
	}
	return LLMResponse{Text: "ok"}, nil
}

type llmCallRecorder struct {
	statuses []string
}

func (r *llmCallRecorder) ObserveLLMCall(task, status string, d time.Duration) {
	r.statuses = append(r.statuses, task+":"+status)
}

func TestRetryingLLMClient_RetriesWithBackoff(t *testing.T) {
	inner := &flakyLLM{failures: 2, err: errors.New("502")}
	recorder := &llmCallRecorder{}
	client := NewRetryingLLMClient(inner, nil,
		WithMaxRetries(2),
		WithRetryBackoff(100*time.Millisecond),
		WithLLMObserver(recorder),
	)
	var waits []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	resp, err := client.Complete(context.Background(), LLMRequest{Task: TaskClassify})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, waits)
	assert.Equal(t, []string{"classify:error", "classify:error", "classify:ok"}, recorder.statuses)
}

func TestRetryingLLMClient_GivesUp(t *testing.T) {
	inner := &flakyLLM{failures: 10, err: errors.New("boom")}
	client := NewRetryingLLMClient(inner, nil, WithMaxRetries(1), WithRetryBackoff(0))

	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 2, inner.calls)
}

func TestRetryingLLMClient_AttemptTimeout(t *testing.T) {
	slow := llmFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	})
	recorder := &llmCallRecorder{}
	client := NewRetryingLLMClient(slow, nil,
		WithAttemptTimeout(10*time.Millisecond),
		WithMaxRetries(0),
		WithLLMObserver(recorder),
	)

	_, err := client.Complete(context.Background(), LLMRequest{Task: TaskAnswer})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"answer:timeout"}, recorder.statuses)
}

func TestRetryingLLMClient_DoesNotRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	client := NewRetryingLLMClient(llmFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		calls++
		cancel()
		return LLMResponse{}, errors.New("interrupted")
	}), nil, WithMaxRetries(3))

	_, err := client.Complete(ctx, LLMRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestFallbackLLMClient(t *testing.T) {
	failing := llmFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		return LLMResponse{}, errors.New("primary down")
	})
	backup := llmFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		return LLMResponse{Text: "from backup"}, nil
	})

	resp, err := NewFallbackLLMClient(failing, backup, nil).Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Text)

	_, err = NewFallbackLLMClient(failing, nil, nil).Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "primary down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	watch := llmFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		called = true
		return LLMResponse{}, nil
	})
	_, err = NewFallbackLLMClient(failing, watch, nil).Complete(ctx, LLMRequest{})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestNewGeminiLLMClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), " ", "")
	assert.Error(t, err)
}
