package main

import (
	"context"
	"io"

	"github.com/lazylama/memeswap/internal/model"
)

type MemeAPIService interface {
	SwapURL(ctx context.Context, url string) (*model.SwapResult, error)
	SwapUpload(ctx context.Context, data []byte, contentType string) (*model.SwapResult, error)
	Trending(ctx context.Context, limit int) ([]model.Candidate, error)
	SearchCelebrity(ctx context.Context, name string, limit int) ([]model.Candidate, error)
	Roast(ctx context.Context, req model.RoastRequest) (string, error)
	LoadImage(ctx context.Context, key string) (io.ReadCloser, string, error)
	RefreshMemeCache(ctx context.Context) error
}
