package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/havana-support/internal/faq"
)

// EscalationSentinel is the literal the answer prompts ask the model to emit
// when it cannot answer.
const EscalationSentinel = "ESCALATE_TO_ADMIN"

// IsEscalation reports whether generated text carries the sentinel anywhere, in any case.
func IsEscalation(text string) bool {
	return strings.Contains(strings.ToUpper(text), EscalationSentinel)
}

const faqAnswerPromptTemplate = `You are %s, a helpful assistant. Use the following FAQs if relevant:
%s

User: %s
If you cannot answer confidently, respond with exactly: "ESCALATE_TO_ADMIN".
Otherwise, answer clearly and concisely.`

const casualAnswerPromptTemplate = `You are %s, a friendly assistant.
Respond helpfully to the user's message, even if it's casual (like "hi", "can I get help", etc.).
If the question is something you cannot answer confidently, respond with exactly: "ESCALATE_TO_ADMIN".

User: "%s"`

// AnswerGenerator produces free-text replies for the info intent.
type AnswerGenerator struct {
	client        LLMClient
	assistantName string
}

func NewAnswerGenerator(client LLMClient, assistantName string) *AnswerGenerator {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if strings.TrimSpace(assistantName) == "" {
		assistantName = "May"
	}
	return &AnswerGenerator{client: client, assistantName: assistantName}
}

type faqContextEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AnswerFromFAQ answers using only the given FAQ entries as reference.
func (g *AnswerGenerator) AnswerFromFAQ(ctx context.Context, content string, items []faq.Item, history []ChatMessage) (string, error) {
	entries := make([]faqContextEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, faqContextEntry{Question: it.Question, Answer: it.Answer})
	}
	encoded, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("conversation: encode faq context: %w", err)
	}
	prompt := fmt.Sprintf(faqAnswerPromptTemplate, g.assistantName, encoded, sanitizeForPrompt(content))
	return g.generate(ctx, prompt, history)
}

// AnswerCasually handles greetings and general chatter with no FAQ context.
func (g *AnswerGenerator) AnswerCasually(ctx context.Context, content string, history []ChatMessage) (string, error) {
	prompt := fmt.Sprintf(casualAnswerPromptTemplate, g.assistantName, sanitizeForPrompt(content))
	return g.generate(ctx, prompt, history)
}

func (g *AnswerGenerator) generate(ctx context.Context, prompt string, history []ChatMessage) (string, error) {
	resp, err := g.client.Complete(ctx, LLMRequest{
		Task:        TaskAnswer,
		System:      []string{prompt},
		Messages:    history,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
