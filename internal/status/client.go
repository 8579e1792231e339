// Package status fetches job status documents from the QC backend.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/linartova/data-quality/internal/util"
)

// ErrMalformed marks a response body that is not a valid status document.
var ErrMalformed = errors.New("malformed status response")

const (
	defaultMaxBodyBytes = 64 * 1024 * 1024
	errorBodyBytes      = 1024
)

const statusSchema = `{
  "type": "object",
  "required": ["response"],
  "properties": {
    "response": {"type": "boolean"},
    "graphs": {"type": "array", "items": {"type": "string"}},
    "tables": {"type": "array", "items": {"type": "string"}}
  }
}`

var schema = util.MustCompileSchema("status.json", statusSchema)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Response is one observation of a job.
//
// Items holds every array field of the document keyed by name ("graphs",
// "tables"); each variant reads the one it renders.
type Response struct {
	Done  bool
	Items map[string][]string
}

// Field returns the items under name and whether the field was present.
func (r Response) Field(name string) ([]string, bool) {
	items, ok := r.Items[name]
	return items, ok
}

// Client is a minimal client for the status and download endpoints.
type Client struct {
	BaseURL      *url.URL
	HTTP         *http.Client
	MaxBodyBytes int64
}

// NewClient constructs a status client rooted at base.
func NewClient(base string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	return &Client{
		BaseURL: u,
		HTTP: &http.Client{
			Timeout: timeout,
		},
		MaxBodyBytes: defaultMaxBodyBytes,
	}, nil
}

// URL resolves an endpoint path against the upstream base.
func (c *Client) URL(endpoint string) string {
	return c.BaseURL.ResolveReference(&url.URL{Path: endpoint}).String()
}

// Fetch performs one status query.
//
// Transport failures and non-2xx codes are returned as-is; a body that is not
// a single JSON object matching the status schema wraps ErrMalformed.
func (c *Client) Fetch(ctx context.Context, endpoint string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(endpoint), nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := readLimited(resp.Body, errorBodyBytes)
		if len(buf) > errorBodyBytes {
			buf = buf[:errorBodyBytes]
		}
		return Response{}, &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(buf)}
	}

	body, err := readLimited(resp.Body, c.MaxBodyBytes)
	if err != nil {
		return Response{}, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if c.MaxBodyBytes > 0 && int64(len(body)) > c.MaxBodyBytes {
		return Response{}, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformed, c.MaxBodyBytes)
	}
	return Decode(body)
}

// Decode parses and validates a status document.
func Decode(body []byte) (Response, error) {
	m, err := util.DecodeJSONMap(body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(m); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := Response{Items: make(map[string][]string)}
	out.Done, _ = util.ToBool(m["response"])
	for k, v := range m {
		if k == "response" {
			continue
		}
		if items, ok := util.ToStringSlice(v); ok {
			out.Items[k] = items
		}
	}
	return out, nil
}

// readLimited reads at most max+1 bytes so callers can detect oversize bodies.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	return io.ReadAll(io.LimitReader(r, max+1))
}
