package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// Fetcher opens a model source for reading.
type Fetcher interface {
	Open(ctx context.Context, source string) (io.ReadCloser, error)
}

// HTTPFetcher handles http(s) URLs, file:// URLs and plain local paths.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}

	switch u.Scheme {
	case "", "file":
		path := source
		if u.Scheme == "file" {
			path = u.Path
		}
		return os.Open(path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		client := f.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
