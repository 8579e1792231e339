// Package poller watches a QC job through its status endpoint and renders the
// finished payload into the variant's page.
//
// A Poller moves through Idle -> Polling -> Rendering -> Done. While polling,
// every tick fires an independent status request; there is no in-flight guard,
// so slow responses may overlap. Failed polls are logged and polling goes on
// with no backoff and no retry limit. The response that first observes completion
// stops the ticker and renders, all under the poller lock, so rendering happens
// exactly once and late responses are ignored.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/linartova/data-quality/internal/page"
	"github.com/linartova/data-quality/internal/plot"
	"github.com/linartova/data-quality/internal/status"
	"github.com/linartova/data-quality/internal/storage"
)

// Page element ids the pollers rely on.
const (
	MainContentID = "main-content"
	ProgressBarID = "progress-bar"
)

// DefaultInterval is the poll period used when Options.Interval is unset.
const DefaultInterval = time.Second

var (
	// ErrNotIdle is returned by Start on a poller that was already started.
	ErrNotIdle = errors.New("poller already started")
	// ErrStopped is returned by Wait when the poller was stopped before the job finished.
	ErrStopped = errors.New("poller stopped before completion")
)

// State is the lifecycle state of a Poller.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateRendering
	StateDone
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateRendering:
		return "rendering"
	case StateDone:
		return "done"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Fetcher queries a status endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (status.Response, error)
}

// Options configure a Poller.
type Options struct {
	Interval time.Duration
	// Renderer receives plot items; defaults to plot.PlotlyRenderer.
	Renderer plot.Renderer
	// Sanitize strips active content from markup items.
	Sanitize bool
	Store    storage.Store
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Status is a point-in-time view of a Poller.
type Status struct {
	Variant        string     `json:"variant"`
	Endpoint       string     `json:"endpoint"`
	State          string     `json:"state"`
	Polls          int        `json:"polls"`
	Errors         int        `json:"errors"`
	ItemCount      int        `json:"item_count"`
	Rendered       int        `json:"rendered"`
	RenderFailures int        `json:"render_failures"`
	LastError      string     `json:"last_error,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Poller polls one variant's status endpoint and renders its page.
type Poller struct {
	variant Variant
	fetcher Fetcher
	doc     *page.Document
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	ctx      context.Context
	cancel   context.CancelFunc
	ticker   *time.Ticker
	quit     chan struct{}
	quitOnce sync.Once
	loopDone chan struct{}
	done     chan struct{} // closed on Done
	terminal chan struct{} // closed on Done or Stopped
	inflight sync.WaitGroup

	polls          int
	errors         int
	lastCount      int
	lastErr        string
	rendered       int
	renderFailures int
	warnedProgress bool
	startedAt      time.Time
	finishedAt     time.Time
}

// New creates a Poller for variant v rendering into doc.
// The page must contain the main-content container.
func New(v Variant, f Fetcher, doc *page.Document, opts Options) (*Poller, error) {
	v = v.withDefaults()
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("variant %s: nil fetcher", v.Name)
	}
	if doc == nil || doc.ByID(MainContentID) == nil {
		return nil, fmt.Errorf("variant %s: page has no #%s element", v.Name, MainContentID)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Renderer == nil {
		opts.Renderer = plot.PlotlyRenderer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poller{
		variant:  v,
		fetcher:  f,
		doc:      doc,
		opts:     opts,
		logger:   logger.With("variant", v.Name),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
		terminal: make(chan struct{}),
	}
	p.opts.Metrics.SetState(v.Name, StateIdle)
	return p, nil
}

// Variant returns the variant being polled.
func (p *Poller) Variant() Variant {
	return p.variant
}

// Start begins polling. The first request is issued one interval after Start.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return ErrNotIdle
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = time.NewTicker(p.opts.Interval)
	p.startedAt = time.Now()
	p.setState(StatePolling)
	p.mu.Unlock()

	p.logger.Info("polling started", "endpoint", p.variant.Endpoint, "interval", p.opts.Interval)
	go p.run()
	return nil
}

// Stop ends polling. A poller that already finished keeps its rendered page.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateIdle, StatePolling:
		p.setState(StateStopped)
		close(p.terminal)
		p.logger.Info("polling stopped", "polls", p.polls, "errors", p.errors)
	}
	p.stopTicker()
	if p.cancel != nil {
		p.cancel()
	}
}

// Close stops the poller and waits for the loop and in-flight requests to finish.
func (p *Poller) Close() {
	p.mu.Lock()
	started := p.ticker != nil
	p.mu.Unlock()

	p.Stop()
	if started {
		<-p.loopDone
	}
	p.inflight.Wait()
}

// Done returns a channel closed once the page has been rendered.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the poller finishes or stops, or ctx ends.
func (p *Poller) Wait(ctx context.Context) error {
	select {
	case <-p.terminal:
		if p.State() == StateDone {
			return nil
		}
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns a snapshot of the poller's progress.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		Variant:        p.variant.Name,
		Endpoint:       p.variant.Endpoint,
		State:          p.state.String(),
		Polls:          p.polls,
		Errors:         p.errors,
		ItemCount:      p.lastCount,
		Rendered:       p.rendered,
		RenderFailures: p.renderFailures,
		LastError:      p.lastErr,
	}
	if !p.startedAt.IsZero() {
		t := p.startedAt
		s.StartedAt = &t
	}
	if !p.finishedAt.IsZero() {
		t := p.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// RenderPage writes the page in its current state.
func (p *Poller) RenderPage(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Render(w)
}

// WritePage renders the page to path, replacing it atomically.
func (p *Poller) WritePage(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create page dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*.html")
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := p.RenderPage(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("render page: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace page: %w", err)
	}
	return nil
}

// run dispatches ticks until the ticker is stopped or the context ends.
func (p *Poller) run() {
	defer close(p.loopDone)
	for {
		select {
		case <-p.ticker.C:
			p.issue()
		case <-p.quit:
			return
		case <-p.ctx.Done():
			p.Stop()
			return
		}
	}
}

// issue launches one status request without waiting for earlier ones.
func (p *Poller) issue() {
	p.mu.Lock()
	if p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	p.inflight.Add(1)
	ctx := p.ctx
	p.mu.Unlock()

	go p.tick(ctx)
}

func (p *Poller) tick(ctx context.Context) {
	defer p.inflight.Done()

	p.opts.Metrics.AddInFlight(p.variant.Name, 1)
	defer p.opts.Metrics.AddInFlight(p.variant.Name, -1)

	start := time.Now()
	resp, err := p.fetcher.Fetch(ctx, p.variant.Endpoint)
	p.handle(resp, err, time.Since(start))
}

// handle applies one poll result. Only the response that first sees the job
// done while polling renders the page.
func (p *Poller) handle(resp status.Response, err error, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePolling {
		p.logger.Debug("ignoring late status response", "state", p.state.String())
		return
	}
	p.polls++

	rec := storage.Record{
		Variant:    p.variant.Name,
		DurationMs: int(elapsed.Milliseconds()),
	}

	var items []string
	if err == nil {
		var present bool
		items, present = resp.Field(p.variant.ItemsField)
		switch {
		case present:
		case resp.Done:
			err = fmt.Errorf("%w: finished job without %q", status.ErrMalformed, p.variant.ItemsField)
		case p.variant.ProgressCounter:
			err = fmt.Errorf("%w: pending job without %q", status.ErrMalformed, p.variant.ItemsField)
		}
	}
	if err != nil {
		class := classify(err)
		p.errors++
		p.lastErr = err.Error()
		p.logger.Error("status poll failed", "endpoint", p.variant.Endpoint, "class", class, "err", err)
		p.opts.Metrics.RecordPoll(p.variant.Name, string(storage.OutcomeError), elapsed)
		p.opts.Metrics.RecordError(p.variant.Name, class)

		rec.Outcome = storage.OutcomeError
		rec.ErrorClass = class
		rec.Error = err.Error()
		var httpErr *status.HTTPError
		if errors.As(err, &httpErr) {
			rec.HTTPStatus = httpErr.StatusCode
		}
		p.record(&rec)
		return
	}

	count := len(items)
	p.lastCount = count
	p.lastErr = ""
	rec.ItemCount = count
	p.opts.Metrics.SetItemsReported(p.variant.Name, count)

	if p.variant.ProgressCounter {
		p.updateProgress(count)
	}
	if p.variant.LogCount {
		p.logger.Info("items reported", "count", count)
	}
	p.logger.Debug("status polled", "done", resp.Done, "count", count)

	if !resp.Done {
		rec.Outcome = storage.OutcomePending
		p.opts.Metrics.RecordPoll(p.variant.Name, string(storage.OutcomePending), elapsed)
		p.record(&rec)
		return
	}

	rec.Outcome = storage.OutcomeDone
	p.opts.Metrics.RecordPoll(p.variant.Name, string(storage.OutcomeDone), elapsed)
	p.record(&rec)

	p.setState(StateRendering)
	p.stopTicker()
	p.render(items)
	p.finishedAt = time.Now()
	p.setState(StateDone)
	close(p.done)
	close(p.terminal)
}

// updateProgress writes the progress text. Caller must hold the lock.
func (p *Poller) updateProgress(count int) {
	bar := p.doc.ByID(ProgressBarID)
	if bar == nil {
		if !p.warnedProgress {
			p.logger.Warn("page has no progress element", "id", ProgressBarID)
			p.warnedProgress = true
		}
		return
	}
	page.SetText(bar, p.variant.ProgressText(count))
}

// render inserts every item in payload order. Caller must hold the lock.
func (p *Poller) render(items []string) {
	container := p.doc.ByID(MainContentID)

	if p.variant.HideProgress {
		if bar := p.doc.ByID(ProgressBarID); bar != nil {
			page.Hide(bar)
		}
	}

	for i, item := range items {
		div := page.CreateElement("div")
		id := p.variant.ContainerID(i)
		page.SetAttr(div, "id", id)
		page.SetAttr(div, "class", p.variant.ContainerClass)
		page.SetAttr(div, "style", p.variant.ContainerStyle)
		container.AppendChild(div)

		if err := p.renderItem(div, item); err != nil {
			p.renderFailures++
			p.opts.Metrics.RecordRender(p.variant.Name, false)
			p.logger.Error("render failed", "container", id, "err", err)
			continue
		}
		p.rendered++
		p.opts.Metrics.RecordRender(p.variant.Name, true)
	}

	p.logger.Info("job finished, page rendered",
		"items", len(items),
		"render_failures", p.renderFailures,
		"polls", p.polls,
	)
}

func (p *Poller) renderItem(div *html.Node, item string) error {
	switch p.variant.RenderMode {
	case RenderPlot:
		spec, err := plot.Parse(item)
		if err != nil {
			return err
		}
		return p.opts.Renderer.NewPlot(p.doc, div, spec)
	case RenderMarkup:
		if err := page.SetInnerHTML(div, item); err != nil {
			return err
		}
		if p.opts.Sanitize {
			return page.Sanitize(div)
		}
		return nil
	default:
		return fmt.Errorf("unknown render mode %q", p.variant.RenderMode)
	}
}

// record stores a poll observation. Caller must hold the lock.
func (p *Poller) record(rec *storage.Record) {
	if p.opts.Store == nil {
		return
	}
	if err := p.opts.Store.Insert(rec); err != nil {
		p.logger.Error("failed to record poll", "err", err)
	}
}

// setState changes state. Caller must hold the lock.
func (p *Poller) setState(s State) {
	p.state = s
	p.opts.Metrics.SetState(p.variant.Name, s)
}

// stopTicker stops issuing ticks. Caller must hold the lock.
func (p *Poller) stopTicker() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	p.quitOnce.Do(func() { close(p.quit) })
}

func classify(err error) string {
	var httpErr *status.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return "http_status"
	case errors.Is(err, status.ErrMalformed):
		return "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
