package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/havana-support/internal/faq"
)

// Intent is the classified purpose of a visitor message.
type Intent string

const (
	IntentInfo     Intent = "info"
	IntentAdmin    Intent = "admin"
	IntentAdminNow Intent = "admin_now"
	IntentBookCall Intent = "book_call"
)

// ParseIntent maps a model label onto the closed intent set. Anything
// unrecognized becomes IntentAdmin.
func ParseIntent(raw string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case IntentInfo:
		return IntentInfo
	case IntentAdminNow:
		return IntentAdminNow
	case IntentBookCall:
		return IntentBookCall
	default:
		return IntentAdmin
	}
}

// Classification is the classifier's verdict for one message.
type Classification struct {
	Intent Intent
	// Topics are subcategory names, spelled as in the taxonomy.
	Topics []string
}

const intentPromptTemplate = `You are an intent classifier. Given the user message, respond ONLY in JSON.

Categories and subcategories (multiple subcategories can be selected):
%s

Allowed intents:
- "info": The user is asking for information or help that can be answered using FAQs or predefined data.
- "admin": The user wants to speak with a human or escalate the session.
- "admin_now": The user wants to speak with a human immediately.
- "book_call": The user wants to schedule a follow-up call with a human.

Your JSON should include:
  {
    "intent": "<one of the allowed intents>",
    "topics": ["subcat1", "subcat2", ...]
  }

Message: "%s"`

// IntentClassifier asks the model for an intent plus FAQ topic tags.
type IntentClassifier struct {
	client LLMClient
}

func NewIntentClassifier(client LLMClient) *IntentClassifier {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &IntentClassifier{client: client}
}

func buildIntentPrompt(subcategories []faq.Subcategory, content string) (string, error) {
	if subcategories == nil {
		subcategories = []faq.Subcategory{}
	}
	taxonomy, err := json.Marshal(subcategories)
	if err != nil {
		return "", fmt.Errorf("conversation: encode taxonomy: %w", err)
	}
	return fmt.Sprintf(intentPromptTemplate, taxonomy, sanitizeForPrompt(content)), nil
}

// Classify returns an error when the model call fails or its answer is not
// JSON; callers decide how to degrade.
func (c *IntentClassifier) Classify(ctx context.Context, content string, history []ChatMessage, subcategories []faq.Subcategory) (Classification, error) {
	prompt, err := buildIntentPrompt(subcategories, content)
	if err != nil {
		return Classification{}, err
	}

	resp, err := c.client.Complete(ctx, LLMRequest{
		Task:        TaskClassify,
		System:      []string{prompt},
		Messages:    history,
		Temperature: -1,
		JSON:        true,
	})
	if err != nil {
		return Classification{}, err
	}

	var parsed struct {
		Intent string          `json:"intent"`
		Topics json.RawMessage `json:"topics"`
	}
	if err := decodeModelJSON(resp.Text, &parsed); err != nil {
		return Classification{}, fmt.Errorf("conversation: unparseable classification: %w", err)
	}

	return Classification{
		Intent: ParseIntent(parsed.Intent),
		Topics: faq.CanonicalTopics(subcategories, decodeTopics(parsed.Topics)),
	}, nil
}

// decodeTopics accepts either a list of names or a single name.
func decodeTopics(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}
