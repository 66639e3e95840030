package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quartzlab/depot/internal/depot/blob"
	"github.com/quartzlab/depot/internal/depot/search"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/internal/depot/store"
	"github.com/quartzlab/depot/pkg/httpx"
	"github.com/quartzlab/depot/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	startTime    time.Time
	buildVersion string
	logger       *slog.Logger

	store  store.Store
	blobs  blob.Store
	search search.Index

	Session        service.Session
	BucketsService *service.Buckets
	FilesService   *service.Files
	SearchService  *service.Search

	RefreshTTL    time.Duration
	SecureCookies bool
	WebhookSecret string

	// AuthReady reports whether the external identity provider can verify
	// tokens. Nil when tokens are verified locally.
	AuthReady func(ctx context.Context) bool
}

func NewRouter(
	buildVersion string,
	st store.Store,
	blobs blob.Store,
	idx search.Index,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		startTime:    time.Now(),
		buildVersion: buildVersion,
		logger:       logger,
		store:        st,
		blobs:        blobs,
		search:       idx,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerBuckets()
	r.registerFiles()
	r.registerSearch()
	r.registerWebhooks()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Session:      r.Session,
		RefreshTTL:   r.RefreshTTL,
		SecureCookie: r.SecureCookies,
	}

	// Credential endpoints take the brunt of brute forcing, so they get
	// the strict IP limit.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerBuckets() {
	h := &BucketsHandler{Buckets: r.BucketsService}

	r.Mux.Handle("GET /v1/buckets",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/buckets",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			RequireAuth(r.Session),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/buckets/{bucket}",
		httpx.Chain(http.HandlerFunc(h.HandleDelete),
			RequireAuth(r.Session),
			RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerFiles() {
	h := &FilesHandler{Files: r.FilesService}

	r.Mux.Handle("GET /v1/buckets/{bucket}/files",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/buckets/{bucket}/files",
		httpx.Chain(http.HandlerFunc(h.HandleUpload),
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/buckets/{bucket}/object",
		httpx.Chain(http.HandlerFunc(h.HandleDownload),
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/buckets/{bucket}/key",
		httpx.Chain(http.HandlerFunc(h.HandleDeleteKey),
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/buckets/{bucket}/folder",
		httpx.Chain(http.HandlerFunc(h.HandleDeleteFolder),
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSearch() {
	h := &SearchHandler{Search: r.SearchService}

	r.Mux.Handle("GET /v1/files/search",
		httpx.Chain(h,
			RequireAuth(r.Session),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerWebhooks() {
	// An empty secret would make the HMAC check accept anything, so the
	// endpoint only exists when one is configured.
	if r.WebhookSecret == "" {
		r.logger.Warn("webhook secret not configured, storage webhook disabled")
		return
	}

	// HMAC-authenticated machine endpoint; no session, limited by IP.
	h := &WebhookHandler{Files: r.FilesService, Secret: r.WebhookSecret}

	r.Mux.Handle("POST /v1/webhooks/storage",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.blobs, r.search, r.AuthReady),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
