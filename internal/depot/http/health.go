package http

import (
	"context"
	"net/http"
	"time"

	"github.com/quartzlab/depot/internal/depot/blob"
	"github.com/quartzlab/depot/internal/depot/search"
	"github.com/quartzlab/depot/internal/depot/store"
	"github.com/quartzlab/depot/pkg/httpx"
)

type healthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *healthChecks `json:"checks,omitempty"`
}

type healthChecks struct {
	Database string `json:"database"`
	Blobs    string `json:"blobs"`
	Search   string `json:"search"`
	Auth     string `json:"auth,omitempty"`
}

// LivezHandler always answers 200 while the process is up.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler checks the store, the blob backend, the search backend,
// and optionally the auth backend. A broken search backend degrades the
// response but stays 200: uploads and downloads still work without it.
// authReady is nil when tokens are verified locally and no external
// identity provider needs to be reachable.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	blobs blob.Store,
	idx search.Index,
	authReady func(ctx context.Context) bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &healthChecks{Database: "ok", Blobs: "ok", Search: "ok"}
		status := "ok"
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if _, err := blobs.ListBuckets(r.Context()); err != nil {
			checks.Blobs = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if err := idx.Ping(r.Context()); err != nil {
			checks.Search = "error: " + err.Error()
			if status == "ok" {
				status = "degraded"
			}
		}

		if authReady != nil {
			checks.Auth = "ok"
			if !authReady(r.Context()) {
				checks.Auth = "error: identity provider keys unavailable"
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, code, healthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
