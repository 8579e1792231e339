package storage

import (
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory ring buffer.
// This is used when STORAGE=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	maxRows int
	head    int // next write position
	count   int // actual count (may be less than len(records) initially)
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(maxRows int) *MemoryStore {
	return &MemoryStore{
		records: make([]Record, maxRows),
		maxRows: maxRows,
	}
}

// Insert adds a record, overwriting the oldest once full.
func (s *MemoryStore) Insert(rec *Record) error {
	prepare(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.head] = *rec
	s.head = (s.head + 1) % s.maxRows
	if s.count < s.maxRows {
		s.count++
	}
	return nil
}

// List retrieves records newest first.
func (s *MemoryStore) List(opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff int64
	if opts.Window > 0 {
		cutoff = time.Now().UnixMilli() - opts.Window.Milliseconds()
	}

	var out []Record
	for _, r := range s.newestFirst() {
		if opts.Variant != "" && r.Variant != opts.Variant {
			continue
		}
		if opts.Outcome != nil && r.Outcome != *opts.Outcome {
			continue
		}
		if cutoff > 0 && r.TS < cutoff {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// Summary aggregates the records of a variant.
func (s *MemoryStore) Summary(variant string) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &Summary{Variant: variant}
	// Walk oldest to newest so the last assignment wins.
	ordered := s.newestFirst()
	for i := len(ordered) - 1; i >= 0; i-- {
		r := ordered[i]
		if r.Variant != variant {
			continue
		}
		if sum.Polls == 0 {
			sum.FirstTS = r.TS
		}
		sum.Polls++
		sum.LastTS = r.TS
		switch r.Outcome {
		case OutcomeError:
			sum.Errors++
		case OutcomeDone:
			sum.Done = true
			sum.LastItemCount = r.ItemCount
		default:
			sum.LastItemCount = r.ItemCount
		}
	}
	if sum.Polls == 0 {
		return nil, ErrNotFound
	}
	return sum, nil
}

// Close is a no-op for memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// newestFirst returns the stored records from newest to oldest.
// Caller must hold the lock.
func (s *MemoryStore) newestFirst() []Record {
	out := make([]Record, 0, s.count)
	for i := 1; i <= s.count; i++ {
		idx := (s.head - i + s.maxRows) % s.maxRows
		out = append(out, s.records[idx])
	}
	return out
}
