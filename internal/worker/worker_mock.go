package worker

import (
	"context"

	"github.com/lazylama/memeswap/internal/model"
)

type mockWarmService struct {
	swapCandidateFn func(ctx context.Context, c model.Candidate) (*model.SwapResult, error)
}

func (m *mockWarmService) SwapCandidate(ctx context.Context, c model.Candidate) (*model.SwapResult, error) {
	return m.swapCandidateFn(ctx, c)
}
