package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/lazylama/memeswap/internal/cache/memcache"
	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/modelmgr"
)

func newTestService(t *testing.T, opts Options) *MemeService {
	t.Helper()
	if opts.MemeCache == nil {
		opts.MemeCache = memcache.New(24 * time.Hour)
	}
	if opts.TrendsCache == nil {
		opts.TrendsCache = memcache.New(2 * time.Hour)
	}
	if opts.Models == nil {
		opts.Models = &mockModels{
			AcquireReferenceFaceFn: func(ctx context.Context) (*modelmgr.ReferenceFace, error) {
				return &modelmgr.ReferenceFace{}, nil
			},
		}
	}
	return NewMemeService(opts)
}

func TestSwapURL_CacheFirst(t *testing.T) {
	pipelineRuns := 0
	fetches := 0

	svc := newTestService(t, Options{
		Fetcher: &mockFetcher{
			FetchFn: func(ctx context.Context, url string) ([]byte, string, error) {
				fetches++
				return []byte("img-bytes"), "image/jpeg", nil
			},
		},
		Pipeline: &mockPipeline{
			RunFn: func(ctx context.Context, req *model.SwapRequest, ref *modelmgr.ReferenceFace) (*model.SwapResult, error) {
				pipelineRuns++
				require.Equal(t, model.OriginURL, req.Origin)
				require.Equal(t, []byte("img-bytes"), req.Data)
				return &model.SwapResult{OriginalKey: "orig/a", SwappedKey: "swap/a", FacesSwapped: 1, Swapped: true}, nil
			},
		},
	})

	first, err := svc.SwapURL(context.Background(), "https://i.redd.it/meme.jpg")
	require.NoError(t, err)
	require.True(t, first.Swapped)
	require.False(t, first.Cached)

	// same URL again: served from cache, no fetch, no pipeline run
	second, err := svc.SwapURL(context.Background(), "https://i.redd.it/meme.jpg")
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.SwappedKey, second.SwappedKey)

	require.Equal(t, 1, pipelineRuns)
	require.Equal(t, 1, fetches)
}

func TestSwapURL_RejectedByFilter(t *testing.T) {
	svc := newTestService(t, Options{
		Fetcher: &mockFetcher{
			FetchFn: func(ctx context.Context, url string) ([]byte, string, error) {
				t.Fatal("fetcher must not be called for rejected candidates")
				return nil, "", nil
			},
		},
	})

	_, err := svc.SwapURL(context.Background(), "https://example.com/company_logo.png")
	require.ErrorIs(t, err, model.ErrCandidateRejected)
}

func TestSwapURL_EmptyURL(t *testing.T) {
	svc := newTestService(t, Options{})
	_, err := svc.SwapURL(context.Background(), "   ")
	require.ErrorIs(t, err, model.ErrIncorrectQuery)
}

func TestSwapURL_FetchFailure(t *testing.T) {
	svc := newTestService(t, Options{
		Fetcher: &mockFetcher{
			FetchFn: func(ctx context.Context, url string) ([]byte, string, error) {
				return nil, "", model.ErrSourceUnavailable
			},
		},
	})

	_, err := svc.SwapURL(context.Background(), "https://i.redd.it/gone.jpg")
	require.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestSwapURL_ReferenceFaceUnavailable(t *testing.T) {
	svc := newTestService(t, Options{
		Fetcher: &mockFetcher{
			FetchFn: func(ctx context.Context, url string) ([]byte, string, error) {
				return []byte("img"), "image/jpeg", nil
			},
		},
		Models: &mockModels{
			AcquireReferenceFaceFn: func(ctx context.Context) (*modelmgr.ReferenceFace, error) {
				return nil, model.ErrReferenceFaceMissing
			},
		},
	})

	_, err := svc.SwapURL(context.Background(), "https://i.redd.it/meme.jpg")
	require.ErrorIs(t, err, model.ErrReferenceFaceMissing)
}

func TestSwapUpload(t *testing.T) {
	pipelineRuns := 0
	svc := newTestService(t, Options{
		Pipeline: &mockPipeline{
			RunFn: func(ctx context.Context, req *model.SwapRequest, ref *modelmgr.ReferenceFace) (*model.SwapResult, error) {
				pipelineRuns++
				require.Equal(t, model.OriginUpload, req.Origin)
				return &model.SwapResult{OriginalKey: "orig/u", SwappedKey: "orig/u"}, nil
			},
		},
	})

	data := []byte("uploaded-image")
	first, err := svc.SwapUpload(context.Background(), data, "image/png")
	require.NoError(t, err)
	require.False(t, first.Cached)

	// identical bytes hit the content-keyed cache
	second, err := svc.SwapUpload(context.Background(), data, "image/png")
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, 1, pipelineRuns)

	_, err = svc.SwapUpload(context.Background(), nil, "image/png")
	require.ErrorIs(t, err, model.ErrInvalidImage)
}

func TestTrending_FiltersAndWarms(t *testing.T) {
	published := 0
	sourceCalls := 0

	svc := newTestService(t, Options{
		Trends: &mockTrends{
			TrendingFn: func(ctx context.Context, subreddits []string, limit int) ([]model.Candidate, error) {
				sourceCalls++
				return []model.Candidate{
					{Title: "good meme", URL: "https://i.redd.it/ok.jpg", Score: 90},
					{Title: "spicy", URL: "https://i.redd.it/no.jpg", Score: 80, NSFW: true},
					{Title: "also fine", URL: "https://i.redd.it/ok2.jpg", Score: 70},
				}, nil
			},
		},
		Publisher: &mockPublisher{
			SendWithRetryFn: func(ctx context.Context, strategy retry.Strategy, key, v []byte) error {
				published++
				return nil
			},
		},
		WarmTop: 5,
	})

	got, err := svc.Trending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "good meme", got[0].Title)
	require.Equal(t, 2, published)

	// second call is served from the listing cache
	again, err := svc.Trending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, again, 2)
	require.Equal(t, 1, sourceCalls)
	require.Equal(t, 2, published)
}

func TestSearchCelebrity(t *testing.T) {
	svc := newTestService(t, Options{
		Search: &mockSearch{
			SearchFn: func(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
				return []model.Candidate{
					{Title: "Portrait.jpg", URL: "https://upload.wikimedia.org/p.jpg"},
					{Title: "Signature.png", URL: "https://upload.wikimedia.org/Celebrity_signature.png"},
				}, nil
			},
		},
	})

	got, err := svc.SearchCelebrity(context.Background(), "Some Celebrity", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Portrait.jpg", got[0].Title)

	_, err = svc.SearchCelebrity(context.Background(), "", 10)
	require.ErrorIs(t, err, model.ErrIncorrectQuery)
}

func TestRoast(t *testing.T) {
	svc := newTestService(t, Options{
		Storage: &mockStorage{
			GetFn: func(ctx context.Context, key string) (io.ReadCloser, string, error) {
				require.Equal(t, "swap/abc.jpg", key)
				return io.NopCloser(bytes.NewReader([]byte("jpeg"))), "image/jpeg", nil
			},
		},
		Roaster: &mockRoaster{
			GenerateFn: func(ctx context.Context, imageData []byte, contentType, tone string) (string, error) {
				require.Equal(t, []byte("jpeg"), imageData)
				return "nice haircut, did it lose a bet?", nil
			},
		},
	})

	text, err := svc.Roast(context.Background(), model.RoastRequest{ImageKey: "swap/abc.jpg"})
	require.NoError(t, err)
	require.NotEmpty(t, text)

	_, err = svc.Roast(context.Background(), model.RoastRequest{ImageKey: "../etc/passwd"})
	require.ErrorIs(t, err, model.ErrIncorrectQuery)
}

func TestLoadImage(t *testing.T) {
	svc := newTestService(t, Options{
		Storage: &mockStorage{
			GetFn: func(ctx context.Context, key string) (io.ReadCloser, string, error) {
				if key != "orig/found.jpg" {
					return nil, "", model.ErrResultNotFound
				}
				return io.NopCloser(bytes.NewReader([]byte("img"))), "image/jpeg", nil
			},
		},
	})

	rc, ctype, err := svc.LoadImage(context.Background(), "orig/found.jpg")
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, "image/jpeg", ctype)

	_, _, err = svc.LoadImage(context.Background(), "swap/missing.jpg")
	require.ErrorIs(t, err, model.ErrResultNotFound)

	_, _, err = svc.LoadImage(context.Background(), "secrets/key.pem")
	require.ErrorIs(t, err, model.ErrIncorrectQuery)
}

func TestRefreshMemeCache(t *testing.T) {
	mc := memcache.New(24 * time.Hour)
	svc := newTestService(t, Options{MemeCache: mc})

	require.NoError(t, mc.Put(context.Background(), "k", []byte("v")))
	require.NoError(t, svc.RefreshMemeCache(context.Background()))

	_, ok, err := mc.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}
