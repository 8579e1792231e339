// Package api serves the rendered dashboards, the documentation search and
// the poll history over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linartova/data-quality/internal/download"
	"github.com/linartova/data-quality/internal/page"
	"github.com/linartova/data-quality/internal/poller"
	"github.com/linartova/data-quality/internal/storage"
	"github.com/linartova/data-quality/web"
)

const (
	// APIPrefix is the base path for all JSON endpoints.
	APIPrefix = "/api/v1"

	// Cache duration for summary responses (prevents refresh storms).
	summaryCacheDuration = 2 * time.Second
)

// Dashboard is a polled page the viewer serves.
type Dashboard interface {
	Variant() poller.Variant
	Status() poller.Status
	RenderPage(w io.Writer) error
}

// Options configure a Server.
type Options struct {
	Dashboards []Dashboard
	// Store may be nil when poll history is disabled.
	Store storage.Store
	// Docs is the documentation page; each request filters a copy of it.
	Docs      *page.Document
	Downloads *download.Client
	Logger    *slog.Logger
}

// Server handles viewer requests.
type Server struct {
	dashboards map[string]Dashboard
	order      []string
	store      storage.Store
	docs       *page.Document
	downloads  *download.Client
	index      *template.Template
	logger     *slog.Logger

	summaryCache   *cachedSummaries
	summaryCacheMu sync.RWMutex
}

type cachedSummaries struct {
	data      []storage.Summary
	expiresAt time.Time
}

// NewServer creates a viewer server.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Downloads == nil {
		return nil, fmt.Errorf("download client is required")
	}
	index, err := web.IndexTemplate()
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}

	s := &Server{
		dashboards: make(map[string]Dashboard, len(opts.Dashboards)),
		store:      opts.Store,
		docs:       opts.Docs,
		downloads:  opts.Downloads,
		index:      index,
		logger:     logger,
	}
	for _, d := range opts.Dashboards {
		name := d.Variant().Name
		if _, dup := s.dashboards[name]; dup {
			return nil, fmt.Errorf("dashboard %s registered twice", name)
		}
		s.dashboards[name] = d
		s.order = append(s.order, name)
	}
	return s, nil
}

// Routes returns the viewer router.
func (s *Server) Routes() (http.Handler, error) {
	static, err := web.Static()
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Pages
	r.Get("/", s.handleIndex)
	r.Get("/dashboards/{variant}", s.handleDashboard)
	r.Get("/docs", s.handleDocs)
	r.Get("/download/{name}", s.handleDownload)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// Health/metrics
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	// JSON API
	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/variants", s.handleListVariants)
		r.Get("/variants/{variant}", s.handleGetVariant)
		r.Get("/polls", s.handleListPolls)
		r.Get("/summary", s.handleSummary)
	})

	return r, nil
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func parseWindow(r *http.Request) time.Duration {
	w := r.URL.Query().Get("window")
	switch w {
	case "":
		return 0
	case "1h":
		return time.Hour
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	default:
		if d, err := time.ParseDuration(w); err == nil && d > 0 {
			return d
		}
		return 0
	}
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
