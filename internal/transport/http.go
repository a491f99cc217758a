package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/types"
)

// DefaultBaseURL is the public bucket holding the processed dataset.
const DefaultBaseURL = "https://ins-ai-speech.s3.ap-northeast-2.amazonaws.com/prod/v2"

// HTTPFetcher downloads frames with plain GET requests against a URL prefix.
type HTTPFetcher struct {
	baseURL string
	layout  *address.Layout
	client  *http.Client
}

// NewHTTP creates an HTTP transport. A nil client uses http.DefaultClient;
// per-request deadlines come from the context.
func NewHTTP(baseURL string, layout *address.Layout, client *http.Client) (*HTTPFetcher, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		layout:  layout,
		client:  client,
	}, nil
}

func (h *HTTPFetcher) Name() string { return "http " + h.baseURL }

func (h *HTTPFetcher) Close() error { return nil }

// Fetch downloads the mesh and metadata of f.
func (h *HTTPFetcher) Fetch(ctx context.Context, f address.Frame) (types.FramePair, error) {
	return fetchPair(ctx, h.layout, f, h.get)
}

// URL returns the absolute URL of a relative object path.
func (h *HTTPFetcher) URL(rel string) string {
	return h.baseURL + "/" + strings.TrimLeft(rel, "/")
}

func (h *HTTPFetcher) get(ctx context.Context, rel string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(rel), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	// S3 answers 403 for missing keys when listing is not public
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP error! Status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
