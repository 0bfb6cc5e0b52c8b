package conversation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	specialTokenPattern = regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`)
	roleMarkerPattern   = regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`)
	fakeBoundaryPattern = regexp.MustCompile(`(?i)(end\s+of\s+)?(system|assistant)\s*(message|prompt|instructions?)\s*[\-=]{2,}`)
)

// sanitizeForPrompt strips chat-template markers from visitor text before it
// is interpolated into a system prompt. Ordinary text passes through.
func sanitizeForPrompt(message string) string {
	cleaned := specialTokenPattern.ReplaceAllString(message, "")
	cleaned = roleMarkerPattern.ReplaceAllString(cleaned, "")
	cleaned = fakeBoundaryPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSONObject trims any prose a model wraps around its JSON answer.
func extractJSONObject(text string) string {
	content := strings.TrimSpace(text)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func decodeModelJSON(text string, dest any) error {
	return json.Unmarshal([]byte(extractJSONObject(text)), dest)
}
