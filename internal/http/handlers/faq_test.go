package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/havana-support/internal/faq"
	"github.com/wolfman30/havana-support/pkg/logging"
)

type brokenFAQ struct{ faq.Repository }

func (brokenFAQ) Categories(context.Context) ([]faq.Category, error) {
	return nil, errors.New("db down")
}

func TestFAQHandlerListsTaxonomy(t *testing.T) {
	repo := faq.NewStaticRepository(
		[]faq.Category{{ID: 1, Name: "Admissions"}},
		[]faq.Subcategory{{ID: 10, CategoryID: 1, Name: "Application Deadlines"}, {ID: 11, CategoryID: 1, Name: "Tuition Fees"}},
		[]faq.Item{
			{ID: 100, SubcategoryID: 10, Question: "When is the deadline?", Answer: "March 31."},
			{ID: 101, SubcategoryID: 11, Question: "How much is tuition?", Answer: "See the fees page."},
		},
	)
	h := NewFAQHandler(repo, logging.New("error"))

	rec := httptest.NewRecorder()
	h.Categories(rec, httptest.NewRequest(http.MethodGet, "/faq/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cats struct {
		Categories []faq.Category `json:"categories"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cats))
	assert.Equal(t, []faq.Category{{ID: 1, Name: "Admissions"}}, cats.Categories)

	rec = httptest.NewRecorder()
	h.Subcategories(rec, httptest.NewRequest(http.MethodGet, "/faq/subcategories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var subs struct {
		Subcategories []faq.Subcategory `json:"subcategories"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&subs))
	assert.Len(t, subs.Subcategories, 2)

	rec = httptest.NewRecorder()
	h.Items(rec, httptest.NewRequest(http.MethodGet, "/faq/items?subcategory_id=11", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items struct {
		Items []faq.Item `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items.Items, 1)
	assert.Equal(t, int64(101), items.Items[0].ID)

	rec = httptest.NewRecorder()
	h.Items(rec, httptest.NewRequest(http.MethodGet, "/faq/items", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	items.Items = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	assert.Len(t, items.Items, 2)
}

func TestFAQHandlerRejectsBadSubcategory(t *testing.T) {
	h := NewFAQHandler(faq.NewSeedRepository(), logging.New("error"))
	rec := httptest.NewRecorder()
	h.Items(rec, httptest.NewRequest(http.MethodGet, "/faq/items?subcategory_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFAQHandlerRepositoryError(t *testing.T) {
	h := NewFAQHandler(brokenFAQ{}, logging.New("error"))
	rec := httptest.NewRecorder()
	h.Categories(rec, httptest.NewRequest(http.MethodGet, "/faq/categories", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
