package http

import (
	"net/http"
	"strconv"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/httpx"
)

// SearchHandler serves GET /v1/files/search.
type SearchHandler struct {
	Search *service.Search
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w)
			return
		}
		limit = n
	}

	id := identityFromCtx(r.Context())
	hits, err := h.Search.Query(r.Context(), id, q, limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	if hits == nil {
		hits = []domain.SearchHit{}
	}
	httpx.WriteJSON(w, http.StatusOK, hits)
}
