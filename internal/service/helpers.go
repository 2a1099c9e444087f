package service

import (
	"context"
	"io"
	"strings"

	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/mwlogger"
)

// validateImageKey rejects keys outside the generated-image namespaces
// before they ever reach storage.
func validateImageKey(key string) error {
	if key == "" || strings.Contains(key, "..") {
		return model.ErrIncorrectQuery
	}
	if !strings.HasPrefix(key, "orig/") && !strings.HasPrefix(key, "swap/") {
		return model.ErrIncorrectQuery
	}
	return nil
}

func closeFileFlow(ctx context.Context, res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Failed to close file flow")
	}
}
