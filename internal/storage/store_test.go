package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories runs each test against both backends.
func storeFactories() map[string]func(t *testing.T, maxRows int) Store {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return map[string]func(*testing.T, int) Store{
		"memory": func(_ *testing.T, maxRows int) Store { return NewMemoryStore(maxRows) },
		"sqlite": func(t *testing.T, maxRows int) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "polls.sqlite"), maxRows, logger)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreInsertAndList(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 1000)
			defer s.Close()

			base := time.Now().UnixMilli()
			recs := []*Record{
				{Variant: "graphs", TS: base, Outcome: OutcomePending, HTTPStatus: 200, ItemCount: 0},
				{Variant: "graphs", TS: base + 1, Outcome: OutcomeError, ErrorClass: "malformed", Error: "bad json"},
				{Variant: "failures", TS: base + 2, Outcome: OutcomePending, HTTPStatus: 200},
				{Variant: "graphs", TS: base + 3, Outcome: OutcomeDone, HTTPStatus: 200, ItemCount: 16},
			}
			for _, r := range recs {
				require.NoError(t, s.Insert(r))
				assert.NotEmpty(t, r.ID)
			}

			all, err := s.List(ListOptions{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, OutcomeDone, all[0].Outcome)
			assert.Equal(t, 16, all[0].ItemCount)

			graphs, err := s.List(ListOptions{Variant: "graphs", Limit: 2})
			require.NoError(t, err)
			require.Len(t, graphs, 2)
			assert.Equal(t, "malformed", graphs[1].ErrorClass)
			assert.Equal(t, "bad json", graphs[1].Error)

			errOutcome := OutcomeError
			errs, err := s.List(ListOptions{Outcome: &errOutcome})
			require.NoError(t, err)
			assert.Len(t, errs, 1)

			recent, err := s.List(ListOptions{Window: time.Hour})
			require.NoError(t, err)
			assert.Len(t, recent, 4)
		})
	}
}

func TestStoreSummary(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 1000)
			defer s.Close()

			base := time.Now().UnixMilli()
			require.NoError(t, s.Insert(&Record{Variant: "graphs", TS: base, Outcome: OutcomePending, ItemCount: 3}))
			require.NoError(t, s.Insert(&Record{Variant: "graphs", TS: base + 1, Outcome: OutcomeError}))
			require.NoError(t, s.Insert(&Record{Variant: "graphs", TS: base + 2, Outcome: OutcomePending, ItemCount: 9}))

			sum, err := s.Summary("graphs")
			require.NoError(t, err)
			assert.Equal(t, 3, sum.Polls)
			assert.Equal(t, 1, sum.Errors)
			assert.Equal(t, 9, sum.LastItemCount)
			assert.False(t, sum.Done)
			assert.Equal(t, base, sum.FirstTS)
			assert.Equal(t, base+2, sum.LastTS)

			_, err = s.Summary("failures")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStoreRingBuffer(t *testing.T) {
	s := NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(&Record{Variant: "graphs", TS: int64(i + 1), Outcome: OutcomePending, ItemCount: i}))
	}

	got, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{4, 3, 2}, []int{got[0].ItemCount, got[1].ItemCount, got[2].ItemCount})
}

func TestSQLiteStorePrune(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "polls.sqlite"), 150, nil)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 2*pruneEvery; i++ {
		require.NoError(t, s.Insert(&Record{Variant: "graphs", TS: int64(i + 1), Outcome: OutcomePending, ItemCount: i}))
	}

	got, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 150)
	assert.Equal(t, 2*pruneEvery-1, got[0].ItemCount)
}
