package transport

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/lazylama/memeswap/internal/model"
)

type mockMemeService struct {
	swapURLFn    func(ctx context.Context, url string) (*model.SwapResult, error)
	swapUploadFn func(ctx context.Context, data []byte, contentType string) (*model.SwapResult, error)
	trendingFn   func(ctx context.Context, limit int) ([]model.Candidate, error)
	searchFn     func(ctx context.Context, name string, limit int) ([]model.Candidate, error)
	roastFn      func(ctx context.Context, req model.RoastRequest) (string, error)
	loadImageFn  func(ctx context.Context, key string) (io.ReadCloser, string, error)
	refreshFn    func(ctx context.Context) error
}

func (m *mockMemeService) SwapURL(ctx context.Context, url string) (*model.SwapResult, error) {
	return m.swapURLFn(ctx, url)
}

func (m *mockMemeService) SwapUpload(ctx context.Context, data []byte, contentType string) (*model.SwapResult, error) {
	return m.swapUploadFn(ctx, data, contentType)
}

func (m *mockMemeService) Trending(ctx context.Context, limit int) ([]model.Candidate, error) {
	return m.trendingFn(ctx, limit)
}

func (m *mockMemeService) SearchCelebrity(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
	return m.searchFn(ctx, name, limit)
}

func (m *mockMemeService) Roast(ctx context.Context, req model.RoastRequest) (string, error) {
	return m.roastFn(ctx, req)
}

func (m *mockMemeService) LoadImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.loadImageFn(ctx, key)
}

func (m *mockMemeService) RefreshMemeCache(ctx context.Context) error {
	return m.refreshFn(ctx)
}

func init() {
	gin.SetMode(gin.TestMode)
}
