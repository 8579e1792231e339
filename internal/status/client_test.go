package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, 2*time.Second)
	require.NoError(t, err)
	return c
}

func TestFetchDone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check_graphs_done_fhir", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response": true, "graphs": ["{\"data\": []}", "{\"data\": []}"]}`))
	})

	resp, err := c.Fetch(context.Background(), "/check_graphs_done_fhir")
	require.NoError(t, err)
	assert.True(t, resp.Done)

	graphs, ok := resp.Field("graphs")
	require.True(t, ok)
	assert.Len(t, graphs, 2)

	_, ok = resp.Field("tables")
	assert.False(t, ok)
}

func TestFetchPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response": false, "tables": []}`))
	})

	resp, err := c.Fetch(context.Background(), "/check_failures_done_fhir")
	require.NoError(t, err)
	assert.False(t, resp.Done)
	tables, ok := resp.Field("tables")
	assert.True(t, ok)
	assert.Empty(t, tables)
}

func TestFetchNonSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job store unavailable", http.StatusServiceUnavailable)
	})

	_, err := c.Fetch(context.Background(), "/check_graphs_done_fhir")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "job store unavailable")
}

func TestFetchMalformed(t *testing.T) {
	bodies := map[string]string{
		"not json":        `<html>login</html>`,
		"missing flag":    `{"graphs": []}`,
		"wrong flag type": `{"response": "yes"}`,
		"non-string item": `{"response": true, "graphs": [1]}`,
		"trailing":        `{"response": true} x`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, err := c.Fetch(context.Background(), "/check_graphs_done_fhir")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestFetchOversizeBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response": false, "graphs": []}`))
	})
	c.MaxBodyBytes = 8

	_, err := c.Fetch(context.Background(), "/check_graphs_done_fhir")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFetchTransportError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", time.Second)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "/check_graphs_done_fhir")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestURL(t *testing.T) {
	c, err := NewClient("http://dq.internal:5000", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://dq.internal:5000/download_graphs_fhir_zip", c.URL("/download_graphs_fhir_zip"))
}
