package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/httpx"
	"github.com/quartzlab/depot/pkg/slogx"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeServiceError maps service sentinels onto HTTP statuses. All three
// authentication failures collapse into one generic 401 body so the
// response never leaks whether a username, password, or token was the
// problem.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefresh),
		errors.Is(err, service.ErrInvalidAccess):
		httpx.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		httpx.WriteJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, service.ErrInvalidInput):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
	case errors.Is(err, service.ErrNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
	case errors.Is(err, service.ErrAlreadyExists):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{Error: "already_exists"})
	case errors.Is(err, service.ErrUpstream):
		slogx.FromContext(ctx).Error("upstream dependency failed", "err", err)
		httpx.WriteJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream_failure"})
	default:
		slogx.FromContext(ctx).Error("unhandled service error", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
	}
}

func writeBadRequest(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
}
