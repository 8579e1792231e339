// Package storage keeps the history of status polls.
// Only observation metadata is stored, never the rendered payload.
package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a summary is requested for an unknown variant.
var ErrNotFound = errors.New("not found")

// Outcome is the result of one poll.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeDone    Outcome = "done"
	OutcomeError   Outcome = "error"
)

// Record is one poll observation.
type Record struct {
	ID         string  `json:"id"`
	Variant    string  `json:"variant"`
	TS         int64   `json:"ts"` // unix ms
	Outcome    Outcome `json:"outcome"`
	HTTPStatus int     `json:"http_status,omitempty"`
	ItemCount  int     `json:"item_count"`
	DurationMs int     `json:"duration_ms"`
	ErrorClass string  `json:"error_class,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ListOptions filters for listing records.
type ListOptions struct {
	Variant string
	Outcome *Outcome
	Limit   int
	Window  time.Duration // only records within this window
}

// Summary aggregates the history of one variant.
type Summary struct {
	Variant       string `json:"variant"`
	Polls         int    `json:"polls"`
	Errors        int    `json:"errors"`
	LastItemCount int    `json:"last_item_count"`
	Done          bool   `json:"done"`
	FirstTS       int64  `json:"first_ts"`
	LastTS        int64  `json:"last_ts"`
}

// Store is the interface for poll history storage.
type Store interface {
	// Insert records one poll. Missing ID and TS are filled in.
	Insert(rec *Record) error

	// List returns records newest first.
	List(opts ListOptions) ([]Record, error)

	// Summary aggregates the records of a variant.
	Summary(variant string) (*Summary, error)

	// Close releases resources.
	Close() error
}

func prepare(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.TS == 0 {
		rec.TS = time.Now().UnixMilli()
	}
}
