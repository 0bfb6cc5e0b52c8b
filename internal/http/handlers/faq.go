package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/havana-support/internal/faq"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// FAQHandler exposes the FAQ taxonomy read-only.
type FAQHandler struct {
	repo   faq.Repository
	logger *logging.Logger
}

func NewFAQHandler(repo faq.Repository, logger *logging.Logger) *FAQHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FAQHandler{repo: repo, logger: logger}
}

// Categories handles GET /faq/categories.
func (h *FAQHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.Categories(r.Context())
	if err != nil {
		h.logger.Error("faq: list categories failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// Subcategories handles GET /faq/subcategories.
func (h *FAQHandler) Subcategories(w http.ResponseWriter, r *http.Request) {
	subcategories, err := h.repo.Subcategories(r.Context())
	if err != nil {
		h.logger.Error("faq: list subcategories failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subcategories": subcategories})
}

// Items handles GET /faq/items?subcategory_id=.
func (h *FAQHandler) Items(w http.ResponseWriter, r *http.Request) {
	var subcategoryID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("subcategory_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			jsonError(w, "invalid subcategory_id", http.StatusBadRequest)
			return
		}
		subcategoryID = id
	}

	items, err := h.repo.Items(r.Context(), subcategoryID)
	if err != nil {
		h.logger.Error("faq: list items failed", "error", err, "subcategory_id", subcategoryID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
