// Package storage wires the durable image store with connection retries.
package storage

import (
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/storage/miniostorage"
)

// NewImgStorage keeps retrying the MinIO connection until it succeeds:
// originals and swapped memes have nowhere else to live.
func NewImgStorage(cfg *config.Config, delay time.Duration) *miniostorage.MinioImageStorage {
	for {
		zlog.Logger.Info().Msg("Connecting to image storage...")
		client, err := miniostorage.NewMinioClient(cfg)
		if err != nil {
			zlog.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to connect to image storage")
			time.Sleep(delay)
			continue
		}
		zlog.Logger.Info().Msg("Image storage connected")
		return client
	}
}
