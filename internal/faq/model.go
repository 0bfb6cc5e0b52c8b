package faq

import (
	"context"
	"strings"
)

// Category is a top-level FAQ grouping, e.g. Admissions.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Subcategory is the unit the intent classifier tags messages with.
type Subcategory struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

// Item is one question/answer pair.
type Item struct {
	ID            int64  `json:"id"`
	SubcategoryID int64  `json:"subcategory_id"`
	Question      string `json:"question"`
	Answer        string `json:"answer"`
}

// Repository is the read-only view of the FAQ taxonomy.
type Repository interface {
	Categories(ctx context.Context) ([]Category, error)
	Subcategories(ctx context.Context) ([]Subcategory, error)
	// Items lists entries for one subcategory, or all entries when subcategoryID is 0.
	Items(ctx context.Context, subcategoryID int64) ([]Item, error)
	// ItemsForTopics resolves subcategory names to their entries.
	ItemsForTopics(ctx context.Context, topics []string) ([]Item, error)
}

// CanonicalTopics keeps the topics that name a known subcategory, matched
// case-insensitively, and returns them with the taxonomy's spelling.
func CanonicalTopics(subcategories []Subcategory, topics []string) []string {
	if len(topics) == 0 || len(subcategories) == 0 {
		return nil
	}
	byName := make(map[string]string, len(subcategories))
	for _, sc := range subcategories {
		byName[strings.ToLower(strings.TrimSpace(sc.Name))] = sc.Name
	}
	seen := make(map[string]struct{}, len(topics))
	var out []string
	for _, topic := range topics {
		name, ok := byName[strings.ToLower(strings.TrimSpace(topic))]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
