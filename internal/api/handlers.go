package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linartova/data-quality/internal/download"
	"github.com/linartova/data-quality/internal/poller"
	"github.com/linartova/data-quality/internal/search"
	"github.com/linartova/data-quality/internal/storage"
)

const defaultPollLimit = 100

type indexData struct {
	Variants  []poller.Status
	Downloads []string
}

// handleIndex lists the dashboards and their state.
// GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Variants:  s.statuses(),
		Downloads: download.Names(),
	}

	var buf bytes.Buffer
	if err := s.index.Execute(&buf, data); err != nil {
		s.logger.Error("failed to render index", "err", err)
		http.Error(w, "failed to render index", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleDashboard serves the page of a variant in its current state.
// GET /dashboards/{variant}
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboards[chi.URLParam(r, "variant")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	var buf bytes.Buffer
	if err := d.RenderPage(&buf); err != nil {
		s.logger.Error("failed to render dashboard", "variant", d.Variant().Name, "err", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// handleDocs serves the documentation page filtered by q.
// GET /docs?q=...
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		http.NotFound(w, r)
		return
	}

	doc := s.docs.Clone()
	res := search.Apply(doc, r.URL.Query().Get("q"))
	if res.Missing > 0 {
		s.logger.Warn("documentation blocks without toggle element", "missing", res.Missing)
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		s.logger.Error("failed to render documentation", "err", err)
		http.Error(w, "failed to render documentation", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleDownload sends the browser to the upstream archive.
// GET /download/{name}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	u, err := s.downloads.URL(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, download.ErrUnknownEndpoint) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("failed to resolve download", "err", err)
		http.Error(w, "failed to resolve download", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// VariantsResponse lists the pollers.
type VariantsResponse struct {
	Variants []poller.Status `json:"variants"`
}

// handleListVariants returns the state of every poller.
// GET /api/v1/variants
func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, VariantsResponse{Variants: s.statuses()})
}

// handleGetVariant returns the state of one poller.
// GET /api/v1/variants/{variant}
func (s *Server) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboards[chi.URLParam(r, "variant")]
	if !ok {
		s.writeError(w, http.StatusNotFound, "variant not found")
		return
	}
	s.writeJSON(w, d.Status())
}

// PollListResponse contains poll history records.
type PollListResponse struct {
	Polls []storage.Record `json:"polls"`
}

// handleListPolls returns poll history, newest first.
// GET /api/v1/polls?variant=graphs&outcome=error&limit=50&window=1h
func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	q := r.URL.Query()
	opts := storage.ListOptions{
		Variant: q.Get("variant"),
		Limit:   parseInt(q.Get("limit"), defaultPollLimit),
		Window:  parseWindow(r),
	}
	if o := q.Get("outcome"); o != "" {
		outcome := storage.Outcome(o)
		switch outcome {
		case storage.OutcomePending, storage.OutcomeDone, storage.OutcomeError:
			opts.Outcome = &outcome
		default:
			s.writeError(w, http.StatusBadRequest, "invalid outcome")
			return
		}
	}

	recs, err := s.store.List(opts)
	if err != nil {
		s.logger.Error("failed to list polls", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list polls")
		return
	}
	if recs == nil {
		recs = []storage.Record{}
	}
	s.writeJSON(w, PollListResponse{Polls: recs})
}

// SummaryResponse aggregates poll history per variant.
type SummaryResponse struct {
	Summaries []storage.Summary `json:"summaries"`
}

// handleSummary returns per-variant history aggregates.
// GET /api/v1/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	s.summaryCacheMu.RLock()
	if c := s.summaryCache; c != nil && time.Now().Before(c.expiresAt) {
		s.summaryCacheMu.RUnlock()
		s.writeJSON(w, SummaryResponse{Summaries: c.data})
		return
	}
	s.summaryCacheMu.RUnlock()

	out := make([]storage.Summary, 0, len(s.order))
	for _, name := range s.order {
		sum, err := s.store.Summary(name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to summarize polls", "variant", name, "err", err)
			s.writeError(w, http.StatusInternalServerError, "failed to summarize polls")
			return
		}
		out = append(out, *sum)
	}

	s.summaryCacheMu.Lock()
	s.summaryCache = &cachedSummaries{data: out, expiresAt: time.Now().Add(summaryCacheDuration)}
	s.summaryCacheMu.Unlock()

	s.writeJSON(w, SummaryResponse{Summaries: out})
}

func (s *Server) statuses() []poller.Status {
	out := make([]poller.Status, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.dashboards[name].Status())
	}
	return out
}
