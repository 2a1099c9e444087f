// Package service provides business-logic for the app: cache-first swap
// orchestration, trending/search listings and roast generation.
package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/wb-go/wbf/retry"
	"golang.org/x/sync/semaphore"

	"github.com/lazylama/memeswap/internal/cache"
	"github.com/lazylama/memeswap/internal/filter"
	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/modelmgr"
	"github.com/lazylama/memeswap/internal/mwlogger"
)

// Pipeline - контракт для запуска face-swap
type Pipeline interface {
	Run(ctx context.Context, req *model.SwapRequest, ref *modelmgr.ReferenceFace) (*model.SwapResult, error)
}

// Models provides the shared reference face.
type Models interface {
	AcquireReferenceFace(ctx context.Context) (*modelmgr.ReferenceFace, error)
}

// ImageStorage - контракт для работы с хранилищем
type ImageStorage interface {
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// ImageFetcher downloads candidate images.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// TrendSource lists trending image candidates.
type TrendSource interface {
	Trending(ctx context.Context, subreddits []string, limit int) ([]model.Candidate, error)
}

// CelebritySource searches celebrity image candidates.
type CelebritySource interface {
	Search(ctx context.Context, name string, limit int) ([]model.Candidate, error)
}

// RoastGenerator produces captions for stored swaps.
type RoastGenerator interface {
	Generate(ctx context.Context, imageData []byte, contentType, tone string) (string, error)
}

// Стратегия ретрая отправки в очередь - можно потом вынести значения в конфиг/env
var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    3 * time.Second,
	Backoff:  1.5,
}

type MemeService struct {
	pipeline    Pipeline
	models      Models
	storage     ImageStorage
	publisher   TaskPublisher
	fetcher     ImageFetcher
	trends      TrendSource
	search      CelebritySource
	roaster     RoastGenerator
	memeCache   cache.Cache
	trendsCache cache.Cache
	filter      *filter.Filter
	workers     *semaphore.Weighted
	subreddits  []string
	warmTop     int
}

type Options struct {
	Pipeline    Pipeline
	Models      Models
	Storage     ImageStorage
	Publisher   TaskPublisher
	Fetcher     ImageFetcher
	Trends      TrendSource
	Search      CelebritySource
	Roaster     RoastGenerator
	MemeCache   cache.Cache
	TrendsCache cache.Cache
	Filter      *filter.Filter
	// MaxWorkers bounds concurrent pipeline runs so CPU-bound swaps
	// don't starve the request loop
	MaxWorkers int64
	Subreddits []string
	WarmTop    int
}

func NewMemeService(opts Options) *MemeService {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 2
	}
	if opts.Filter == nil {
		opts.Filter = filter.New(nil)
	}
	if len(opts.Subreddits) == 0 {
		opts.Subreddits = []string{"wholesomememes", "memes", "aww", "funny"}
	}
	if opts.WarmTop <= 0 {
		opts.WarmTop = 5
	}
	return &MemeService{
		pipeline:    opts.Pipeline,
		models:      opts.Models,
		storage:     opts.Storage,
		publisher:   opts.Publisher,
		fetcher:     opts.Fetcher,
		trends:      opts.Trends,
		search:      opts.Search,
		roaster:     opts.Roaster,
		memeCache:   opts.MemeCache,
		trendsCache: opts.TrendsCache,
		filter:      opts.Filter,
		workers:     semaphore.NewWeighted(opts.MaxWorkers),
		subreddits:  opts.Subreddits,
		warmTop:     opts.WarmTop,
	}
}

// SwapURL runs the cache-first swap flow for a source URL.
func (s *MemeService) SwapURL(ctx context.Context, rawURL string) (*model.SwapResult, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, model.ErrIncorrectQuery
	}

	// URL-only requests still pass the filter: the filename alone can
	// disqualify a candidate
	verdict := s.filter.Evaluate(model.Candidate{URL: rawURL})
	if !verdict.Accepted {
		logger.Info().Str("reason", string(verdict.Reason)).Str("url", rawURL).Msg("Candidate rejected")
		return nil, model.ErrCandidateRejected
	}

	key := cache.KeyForURL(rawURL)
	if res, ok := s.cachedResult(ctx, key); ok {
		return res, nil
	}

	data, ctype, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	res, err := s.runPipeline(ctx, &model.SwapRequest{
		Data:        data,
		ContentType: ctype,
		Origin:      model.OriginURL,
		SourceURL:   rawURL,
	})
	if err != nil {
		return nil, err
	}

	s.storeResult(ctx, key, res)
	return res, nil
}

// SwapUpload runs the swap flow for raw uploaded bytes, keyed by content.
func (s *MemeService) SwapUpload(ctx context.Context, data []byte, contentType string) (*model.SwapResult, error) {
	if len(data) == 0 {
		return nil, model.ErrInvalidImage
	}

	key := cache.KeyForContent(data)
	if res, ok := s.cachedResult(ctx, key); ok {
		return res, nil
	}

	res, err := s.runPipeline(ctx, &model.SwapRequest{
		Data:        data,
		ContentType: contentType,
		Origin:      model.OriginUpload,
	})
	if err != nil {
		return nil, err
	}

	s.storeResult(ctx, key, res)
	return res, nil
}

// SwapCandidate is the warm path used by the background worker: filter,
// fetch, run and cache one trending candidate.
func (s *MemeService) SwapCandidate(ctx context.Context, c model.Candidate) (*model.SwapResult, error) {
	verdict := s.filter.Evaluate(c)
	if !verdict.Accepted {
		return nil, model.ErrCandidateRejected
	}
	return s.SwapURL(ctx, c.URL)
}

// Trending serves the filtered trending listing with a short TTL cache.
// On a fresh fetch the top candidates are published for pre-generation.
func (s *MemeService) Trending(ctx context.Context, limit int) ([]model.Candidate, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if limit <= 0 || limit > 50 {
		limit = 20
	}

	listKey := "listing:" + strings.Join(s.subreddits, "|")
	if raw, ok, err := s.trendsCache.Get(ctx, listKey); err == nil && ok {
		var cached []model.Candidate
		if err := json.Unmarshal(raw, &cached); err == nil {
			return capList(cached, limit), nil
		}
	}

	fetched, err := s.trends.Trending(ctx, s.subreddits, 50)
	if err != nil {
		return nil, err
	}

	accepted := make([]model.Candidate, 0, len(fetched))
	for _, c := range fetched {
		verdict := s.filter.Evaluate(c)
		if !verdict.Accepted {
			logger.Debug().Str("reason", string(verdict.Reason)).Str("title", c.Title).Msg("Trending candidate filtered out")
			continue
		}
		accepted = append(accepted, c)
	}

	if raw, err := json.Marshal(accepted); err == nil {
		if err := s.trendsCache.Put(ctx, listKey, raw); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache trending listing")
		}
	}

	s.publishWarmTasks(ctx, accepted)

	return capList(accepted, limit), nil
}

// SearchCelebrity returns filtered image candidates for a human chooser.
func (s *MemeService) SearchCelebrity(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.ErrIncorrectQuery
	}
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	// fetch extra so the filter has room to drop non-portrait assets
	found, err := s.search.Search(ctx, name, limit*2)
	if err != nil {
		return nil, err
	}

	accepted := make([]model.Candidate, 0, limit)
	for _, c := range found {
		if s.filter.Evaluate(c).Accepted {
			accepted = append(accepted, c)
			if len(accepted) >= limit {
				break
			}
		}
	}
	return accepted, nil
}

// Roast generates a caption for a stored swap image.
func (s *MemeService) Roast(ctx context.Context, req model.RoastRequest) (string, error) {
	if err := validateImageKey(req.ImageKey); err != nil {
		return "", err
	}

	rc, ctype, err := s.storage.Get(ctx, req.ImageKey)
	if err != nil {
		return "", model.ErrResultNotFound
	}
	defer closeFileFlow(ctx, rc)

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", model.ErrCommon500
	}

	return s.roaster.Generate(ctx, data, ctype, req.Tone)
}

// LoadImage streams a stored original or swapped image.
func (s *MemeService) LoadImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := validateImageKey(key); err != nil {
		return nil, "", err
	}

	rc, ctype, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, "", model.ErrResultNotFound
	}
	return rc, ctype, nil
}

// RefreshMemeCache force-invalidates all generated results.
func (s *MemeService) RefreshMemeCache(ctx context.Context) error {
	if err := s.memeCache.InvalidateAll(ctx); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to invalidate meme cache")
		return model.ErrCommon500
	}
	return nil
}

// runPipeline gates the CPU-bound run behind the worker semaphore and
// resolves the shared reference face.
func (s *MemeService) runPipeline(ctx context.Context, req *model.SwapRequest) (*model.SwapResult, error) {
	if err := s.workers.Acquire(ctx, 1); err != nil {
		return nil, model.ErrCommon500
	}
	defer s.workers.Release(1)

	ref, err := s.models.AcquireReferenceFace(ctx)
	if err != nil {
		return nil, err
	}

	return s.pipeline.Run(ctx, req, ref)
}

func (s *MemeService) cachedResult(ctx context.Context, key string) (*model.SwapResult, bool) {
	raw, ok, err := s.memeCache.Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			logger := mwlogger.LoggerFromContext(ctx)
			logger.Warn().Err(err).Msg("Meme cache read failed")
		}
		return nil, false
	}

	var res model.SwapResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	res.Cached = true
	return &res, true
}

func (s *MemeService) storeResult(ctx context.Context, key string, res *model.SwapResult) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.memeCache.Put(ctx, key, raw); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Failed to cache swap result")
	}
}

// publishWarmTasks queues the top accepted candidates so the worker
// pre-generates their swaps before anyone opens the page.
func (s *MemeService) publishWarmTasks(ctx context.Context, accepted []model.Candidate) {
	if s.publisher == nil {
		return
	}
	logger := mwlogger.LoggerFromContext(ctx)

	for i, c := range accepted {
		if i >= s.warmTop {
			break
		}
		payload, err := json.Marshal(c)
		if err != nil {
			continue
		}
		key := []byte(cache.KeyForURL(c.URL))
		if err := s.publisher.SendWithRetry(ctx, retryStrategy, key, payload); err != nil {
			logger.Warn().Err(err).Str("url", c.URL).Msg("Failed to publish warm task")
		}
	}
}

func capList(list []model.Candidate, limit int) []model.Candidate {
	if len(list) > limit {
		return list[:limit]
	}
	return list
}
