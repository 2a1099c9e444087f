package service

import (
	"context"
	"io"

	"github.com/wb-go/wbf/retry"

	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/modelmgr"
)

type mockPipeline struct {
	RunFn func(ctx context.Context, req *model.SwapRequest, ref *modelmgr.ReferenceFace) (*model.SwapResult, error)
}

func (m *mockPipeline) Run(ctx context.Context, req *model.SwapRequest, ref *modelmgr.ReferenceFace) (*model.SwapResult, error) {
	return m.RunFn(ctx, req, ref)
}

type mockModels struct {
	AcquireReferenceFaceFn func(ctx context.Context) (*modelmgr.ReferenceFace, error)
}

func (m *mockModels) AcquireReferenceFace(ctx context.Context) (*modelmgr.ReferenceFace, error) {
	return m.AcquireReferenceFaceFn(ctx)
}

type mockStorage struct {
	GetFn func(ctx context.Context, key string) (io.ReadCloser, string, error)
	PutFn func(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.GetFn(ctx, key)
}

func (m *mockStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	return m.PutFn(ctx, key, size, contentType, r)
}

type mockPublisher struct {
	SendWithRetryFn func(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error {
	return m.SendWithRetryFn(ctx, strategy, key, v)
}

type mockFetcher struct {
	FetchFn func(ctx context.Context, url string) ([]byte, string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	return m.FetchFn(ctx, url)
}

type mockTrends struct {
	TrendingFn func(ctx context.Context, subreddits []string, limit int) ([]model.Candidate, error)
}

func (m *mockTrends) Trending(ctx context.Context, subreddits []string, limit int) ([]model.Candidate, error) {
	return m.TrendingFn(ctx, subreddits, limit)
}

type mockSearch struct {
	SearchFn func(ctx context.Context, name string, limit int) ([]model.Candidate, error)
}

func (m *mockSearch) Search(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
	return m.SearchFn(ctx, name, limit)
}

type mockRoaster struct {
	GenerateFn func(ctx context.Context, imageData []byte, contentType, tone string) (string, error)
}

func (m *mockRoaster) Generate(ctx context.Context, imageData []byte, contentType, tone string) (string, error) {
	return m.GenerateFn(ctx, imageData, contentType, tone)
}
