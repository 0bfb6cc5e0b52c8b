package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CallLocation returns the fixed zone callback times are resolved in.
func CallLocation(name string, offsetHours int) *time.Location {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("UTC%+d", offsetHours)
	}
	return time.FixedZone(name, offsetHours*3600)
}

// BookingInfo is what the extractor pulled from one message. Empty fields
// mean the value was missing or unusable.
type BookingInfo struct {
	PhoneNumber   string
	PreferredTime *time.Time
}

const bookingPromptTemplate = `You are a JSON parser for booking info.

Extract the phone number and preferred call time from the user message.
Respond ONLY in JSON in the format:

{
  "phone_number": "<user phone number>",
  "preferred_time": "<preferred call time in ISO 8601 format, %s time (GMT%s)>"
}

current time is: %s

If any field is missing or unclear, set it to null.

User message: "%s"`

// BookingExtractor pulls a phone number and callback time out of free text.
type BookingExtractor struct {
	client LLMClient
	loc    *time.Location
}

func NewBookingExtractor(client LLMClient, loc *time.Location) *BookingExtractor {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if loc == nil {
		loc = CallLocation("SGT", 8)
	}
	return &BookingExtractor{client: client, loc: loc}
}

func (e *BookingExtractor) prompt(content string, now time.Time) string {
	name, offset := now.In(e.loc).Zone()
	return fmt.Sprintf(bookingPromptTemplate,
		name,
		formatOffset(offset),
		now.UTC().Format(time.RFC3339),
		sanitizeForPrompt(content),
	)
}

func formatOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	hours, minutes := seconds/3600, (seconds%3600)/60
	if minutes == 0 {
		return fmt.Sprintf("%s%d", sign, hours)
	}
	return fmt.Sprintf("%s%d:%02d", sign, hours, minutes)
}

// Extract runs the extraction prompt. Only the raw message is sent, without history.
func (e *BookingExtractor) Extract(ctx context.Context, content string, now time.Time) (BookingInfo, error) {
	resp, err := e.client.Complete(ctx, LLMRequest{
		Task:        TaskExtract,
		System:      []string{e.prompt(content, now)},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: content}},
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return BookingInfo{}, err
	}

	var parsed struct {
		PhoneNumber   *string `json:"phone_number"`
		PreferredTime *string `json:"preferred_time"`
	}
	if err := decodeModelJSON(resp.Text, &parsed); err != nil {
		return BookingInfo{}, fmt.Errorf("conversation: unparseable booking info: %w", err)
	}

	var info BookingInfo
	if phone := cleanExtracted(parsed.PhoneNumber); phone != "" {
		info.PhoneNumber = phone
	}
	if raw := cleanExtracted(parsed.PreferredTime); raw != "" {
		if at, err := ParseCallTime(raw, e.loc); err == nil {
			info.PreferredTime = &at
		}
	}
	return info, nil
}

func cleanExtracted(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "unknown":
		return ""
	}
	return s
}

var naiveCallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseCallTime parses an ISO 8601 time. Values without an offset are read
// in loc.
func ParseCallTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.000Z07:00", raw); err == nil {
		return t.In(loc), nil
	}
	if t, err := time.Parse("2006-01-02T15:04Z07:00", raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range naiveCallLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse call time %q", raw)
}

// FormatCallTime renders a booked time for the confirmation message.
func FormatCallTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Mon, 2 Jan 2006 3:04 PM MST")
}

var phonePattern = regexp.MustCompile(`\+?\d{2,}(?:[ -]?\d{3,})*`)

// FindPhoneNumber returns the first run of 7 to 15 digits in text, allowing a
// leading + and single space or dash separators between digit groups.
func FindPhoneNumber(text string) string {
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		normalized := strings.NewReplacer(" ", "", "-", "").Replace(candidate)
		digits := strings.TrimPrefix(normalized, "+")
		if len(digits) >= 7 && len(digits) <= 15 {
			return normalized
		}
	}
	return ""
}
