// Package download resolves and fetches the zipped QC reports offered by the
// backend.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownEndpoint is returned for a download name that is not offered.
var ErrUnknownEndpoint = errors.New("unknown download endpoint")

// Endpoints maps download names to backend paths.
var Endpoints = map[string]string{
	"graphs_fhir_zip":         "/download_graphs_fhir_zip",
	"failures_fhir_zip":       "/download_failures_fhir_zip",
	"graphs_fhir_zip_extra":   "/download_graphs_fhir_zip_extra",
	"failures_fhir_zip_extra": "/download_failures_fhir_zip_extra",
}

// Names returns the download names in sorted order.
func Names() []string {
	out := make([]string, 0, len(Endpoints))
	for k := range Endpoints {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Endpoint returns the backend path of a download.
func Endpoint(name string) (string, error) {
	p, ok := Endpoints[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return p, nil
}

// Client downloads report archives from the backend.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient constructs a download client rooted at base. Downloads have no
// overall timeout; bound them through the context.
func NewClient(base string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{BaseURL: u, HTTP: &http.Client{}, Logger: logger}, nil
}

// URL returns the absolute backend URL of a download.
func (c *Client) URL(name string) (string, error) {
	p, err := Endpoint(name)
	if err != nil {
		return "", err
	}
	return c.BaseURL.ResolveReference(&url.URL{Path: p}).String(), nil
}

// Fetch streams the named archive into dir and returns the written path.
// The file name comes from Content-Disposition, falling back to <name>.zip.
func (c *Client) Fetch(ctx context.Context, name, dir string) (string, error) {
	u, err := c.URL(name)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: upstream status %d", name, resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(dir, fileName(resp.Header.Get("Content-Disposition"), name))

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}

	c.Logger.Info("report downloaded", "name", name, "path", path, "bytes", n)
	return path, nil
}

// fileName picks a safe local name for a download.
func fileName(disposition, name string) string {
	fallback := name + ".zip"
	if disposition == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return fallback
	}
	fn := filepath.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
	if fn == "" || fn == "." || fn == "/" || fn == ".." {
		return fallback
	}
	return fn
}
