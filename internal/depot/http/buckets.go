package http

import (
	"net/http"
	"strings"

	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/httpx"
)

// BucketsHandler serves the bucket lifecycle. Create and delete are
// admin-gated in the router; listing is open to any authenticated caller.
type BucketsHandler struct {
	Buckets *service.Buckets
}

type createBucketRequest struct {
	Name string `json:"name"`
}

// HandleList serves GET /v1/buckets.
func (h *BucketsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.Buckets.List(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buckets)
}

// HandleCreate serves POST /v1/buckets.
func (h *BucketsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBucketRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w)
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if err := h.Buckets.Create(r.Context(), name); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// HandleDelete serves DELETE /v1/buckets/{bucket}.
func (h *BucketsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if bucket == "" {
		writeBadRequest(w)
		return
	}

	if err := h.Buckets.Delete(r.Context(), bucket); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
