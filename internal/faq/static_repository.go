package faq

import (
	"context"
	"strings"
)

// StaticRepository serves a fixed taxonomy held in memory.
type StaticRepository struct {
	categories    []Category
	subcategories []Subcategory
	items         []Item
}

// NewStaticRepository builds a repository over the given rows.
func NewStaticRepository(categories []Category, subcategories []Subcategory, items []Item) *StaticRepository {
	return &StaticRepository{categories: categories, subcategories: subcategories, items: items}
}

// NewSeedRepository returns the same taxonomy the seed migration installs.
func NewSeedRepository() *StaticRepository {
	return NewStaticRepository(
		[]Category{
			{ID: 1, Name: "Admissions"},
			{ID: 2, Name: "Finance"},
			{ID: 3, Name: "Contact"},
		},
		[]Subcategory{
			{ID: 1, CategoryID: 1, Name: "Deadlines"},
			{ID: 2, CategoryID: 1, Name: "Application Process"},
			{ID: 3, CategoryID: 2, Name: "Tuition"},
			{ID: 4, CategoryID: 2, Name: "Scholarships"},
			{ID: 5, CategoryID: 3, Name: "Admissions Office"},
		},
		[]Item{
			{ID: 1, SubcategoryID: 1, Question: "What is the application deadline?", Answer: "Regular applications close on March 31."},
			{ID: 2, SubcategoryID: 1, Question: "When do applications open?", Answer: "Applications open on October 1."},
			{ID: 3, SubcategoryID: 1, Question: "Is there an early decision deadline?", Answer: "Yes, the early decision deadline is December 15."},
			{ID: 4, SubcategoryID: 1, Question: "When are admission results announced?", Answer: "Admission results are announced on April 15."},
			{ID: 5, SubcategoryID: 2, Question: "How do I apply?", Answer: "Submit the online application, upload the required documents, then pay the application fee."},
			{ID: 6, SubcategoryID: 3, Question: "How much is tuition?", Answer: "Tuition is $12,000 per year."},
			{ID: 7, SubcategoryID: 4, Question: "Are scholarships available?", Answer: "Yes, we offer both merit and need-based scholarships covering up to 50% of tuition."},
			{ID: 8, SubcategoryID: 5, Question: "How do I contact admissions?", Answer: "Email admissions@havanauniversity.edu or call +65 1234 5678."},
		},
	)
}

func (r *StaticRepository) Categories(ctx context.Context) ([]Category, error) {
	return append([]Category{}, r.categories...), nil
}

func (r *StaticRepository) Subcategories(ctx context.Context) ([]Subcategory, error) {
	return append([]Subcategory{}, r.subcategories...), nil
}

func (r *StaticRepository) Items(ctx context.Context, subcategoryID int64) ([]Item, error) {
	out := []Item{}
	for _, it := range r.items {
		if subcategoryID == 0 || it.SubcategoryID == subcategoryID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *StaticRepository) ItemsForTopics(ctx context.Context, topics []string) ([]Item, error) {
	ids := make(map[int64]struct{})
	for _, sc := range r.subcategories {
		for _, topic := range topics {
			if strings.EqualFold(sc.Name, topic) {
				ids[sc.ID] = struct{}{}
			}
		}
	}
	var out []Item
	for _, it := range r.items {
		if _, ok := ids[it.SubcategoryID]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}
