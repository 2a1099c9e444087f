package transport

import (
	"errors"
	"io"

	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/model"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrResultNotFound):
		return 404
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrInvalidImage),
		errors.Is(err, model.ErrUnsupportedFormat):
		return 400
	case errors.Is(err, model.ErrCandidateRejected):
		return 422
	case errors.Is(err, model.ErrSourceUnavailable):
		return 502
	case errors.Is(err, model.ErrModelUnavailable),
		errors.Is(err, model.ErrReferenceFaceMissing),
		errors.Is(err, model.ErrCredentialMissing),
		errors.Is(err, model.ErrGenerationUnavailable):
		return 503
	default:
		return 500
	}
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Handler failed to close fileflow")
	}
}
