// Package source implements the external collaborators the core depends
// on: the image fetcher, the trending listing and the celebrity image
// search. Each returns candidates with the metadata the filter needs.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lazylama/memeswap/internal/model"
)

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxImageSize = 20 << 20 // refuse to buffer more than 20MB
)

// Fetcher downloads candidate images.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch returns the image bytes and reported content type for a URL. Any
// failure maps to ErrSourceUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", model.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", model.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d from %s", model.ErrSourceUnavailable, resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", model.ErrSourceUnavailable, err)
	}
	if len(data) > maxImageSize {
		return nil, "", fmt.Errorf("%w: image larger than %d bytes", model.ErrSourceUnavailable, maxImageSize)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
