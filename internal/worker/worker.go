// Package worker pre-generates swaps for trending candidates queued by
// the API, so popular memes are already cached when requested.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/cache"
	"github.com/lazylama/memeswap/internal/model"
)

type WarmService interface {
	SwapCandidate(ctx context.Context, c model.Candidate) (*model.SwapResult, error)
}

type Worker struct {
	service   WarmService
	memeCache cache.Cache
	queue     <-chan kafkago.Message
	consumer  *wbfkafka.Consumer
}

func NewWorkerInstance(svc WarmService, memeCache cache.Cache, q <-chan kafkago.Message, cons *wbfkafka.Consumer) *Worker {
	return &Worker{service: svc, memeCache: memeCache, queue: q, consumer: cons}
}

func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				zlog.Logger.Info().Msg("Queue channel closed, stopping worker...")
				return
			}
			if err := w.processTask(ctx, msg); err != nil {
				// not committed: the message comes back for another try
				zlog.Logger.Warn().Err(err).Str("key", string(msg.Key)).Msg("Warm task failed")
				continue
			}
			if err := w.consumer.Commit(ctx, msg); err != nil {
				zlog.Logger.Warn().Err(err).Msg("Failed to commit queue-message")
			}
		}
	}
}

// processTask warms one candidate. A rejection is terminal and counts as
// handled; transient errors are returned so the message is retried.
func (w *Worker) processTask(ctx context.Context, msg kafkago.Message) error {
	cacheKey := string(msg.Key)

	// someone may have requested this meme while it sat in the queue
	if _, ok, err := w.memeCache.Get(ctx, cacheKey); err == nil && ok {
		return nil
	}

	var candidate model.Candidate
	if err := json.Unmarshal(msg.Value, &candidate); err != nil {
		zlog.Logger.Warn().Err(err).Str("key", cacheKey).Msg("Dropping malformed warm task")
		return nil
	}

	res, err := w.service.SwapCandidate(ctx, candidate)
	switch {
	case errors.Is(err, model.ErrCandidateRejected), errors.Is(err, model.ErrInvalidImage):
		zlog.Logger.Info().Str("url", candidate.URL).Msg("Warm candidate dropped")
		return nil
	case err != nil:
		return fmt.Errorf("warm swap for %q: %w", candidate.URL, err)
	}

	zlog.Logger.Info().Str("url", candidate.URL).Int("faces", res.FacesSwapped).Msg("Warmed candidate")
	return nil
}
