package faq

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// SQLRepository reads the taxonomy through database/sql (pgx stdlib driver).
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository wraps an open database handle.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	if db == nil {
		panic("faq: sql db required")
	}
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM faq_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("faq: select categories: %w", err)
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("faq: scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLRepository) Subcategories(ctx context.Context) ([]Subcategory, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, category_id, name FROM faq_subcategories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("faq: select subcategories: %w", err)
	}
	defer rows.Close()

	out := []Subcategory{}
	for rows.Next() {
		var sc Subcategory
		if err := rows.Scan(&sc.ID, &sc.CategoryID, &sc.Name); err != nil {
			return nil, fmt.Errorf("faq: scan subcategory: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *SQLRepository) Items(ctx context.Context, subcategoryID int64) ([]Item, error) {
	query := `SELECT id, subcategory_id, question, answer FROM faq_items`
	var args []any
	if subcategoryID > 0 {
		query += ` WHERE subcategory_id = $1`
		args = append(args, subcategoryID)
	}
	query += ` ORDER BY id`
	return r.queryItems(ctx, query, args...)
}

func (r *SQLRepository) ItemsForTopics(ctx context.Context, topics []string) ([]Item, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	query := `
		SELECT i.id, i.subcategory_id, i.question, i.answer
		FROM faq_items i
		JOIN faq_subcategories s ON s.id = i.subcategory_id
		WHERE s.name = ANY($1::text[])
		ORDER BY i.id`
	return r.queryItems(ctx, query, pq.Array(topics))
}

func (r *SQLRepository) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("faq: select items: %w", err)
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SubcategoryID, &it.Question, &it.Answer); err != nil {
			return nil, fmt.Errorf("faq: scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
