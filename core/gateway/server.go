package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lyssadev/MarkPEWeb/core/catalog"
	"github.com/lyssadev/MarkPEWeb/core/content"
	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
	"github.com/lyssadev/MarkPEWeb/core/infra/metrics"
)

// Catalog is the search surface the gateway exposes.
type Catalog interface {
	Search(ctx context.Context, term, searchType string, top int) ([]catalog.Item, error)
}

// Downloader resolves an item and produces a deliverable artifact.
type Downloader interface {
	Download(ctx context.Context, itemID string, process bool) (*content.Delivery, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return isAllowedOrigin(r) },
}

// Server is the HTTP surface over the catalog and the download pipeline.
type Server struct {
	catalog   Catalog
	downloads Downloader
	progress  *content.ProgressHub
	limiter   *downloadLimiter
	auth      *APIKeyAuth
	metrics   metrics.GatewayMetrics
	client    *http.Client
	started   time.Time
}

func NewServer(cat Catalog, downloads Downloader, progress *content.ProgressHub, auth *APIKeyAuth, gm metrics.GatewayMetrics) *Server {
	if gm == nil {
		gm = metrics.NoopGateway{}
	}
	return &Server{
		catalog:   cat,
		downloads: downloads,
		progress:  progress,
		limiter:   newDownloadLimiter(),
		auth:      auth,
		metrics:   gm,
		client:    &http.Client{Timeout: 160 * time.Second},
		started:   time.Now(),
	}
}

// Handler assembles the route table and middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/search", s.instrumented("/api/v1/search", s.handleSearch))
	mux.HandleFunc("POST /api/v1/search", s.instrumented("/api/v1/search", s.handleSearch))
	mux.HandleFunc("POST /api/v1/download", s.instrumented("/api/v1/download", s.handleDownload))
	mux.HandleFunc("GET /api/v1/downloads/stream", s.instrumented("/api/v1/downloads/stream", s.handleStream))

	mux.Handle("GET /metrics", metrics.Handler())

	return corsMiddleware(s.rateLimitMiddleware(apiKeyMiddleware(s.auth, mux)))
}

// rateLimitMiddleware guards the download route; search and the progress
// stream are cheap. The acquired slot is held for the whole request so
// in-flight counting covers slow streams.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/download" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		user := callerIdentity(r, s.auth)
		stamp, err := s.limiter.Acquire(user)
		if err != nil {
			http.Error(w, "rate limited, try again later", http.StatusTooManyRequests)
			return
		}
		defer s.limiter.Release(user, stamp)
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logging.Info("gateway", "http listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("gateway", "http server error", "error", err)
		return err
	}
	return nil
}
