// Package fetcher downloads remote item images with per-host rate limiting
// and retry on throttling and server errors.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote images.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Fetch downloads the URL fully into memory.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var _ Fetcher = (*HTTPFetcher)(nil)
