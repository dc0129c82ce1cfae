package usecase

import (
	"context"
	"errors"

	"github.com/V4T54L/logflow/internal/domain"
)

// ErrInvalidTrimLength is returned for a negative trim length.
var ErrInvalidTrimLength = errors.New("max length must not be negative")

// AdminStreamUseCase provides use cases for stream administration.
type AdminStreamUseCase struct {
	repo domain.StreamAdminRepository
}

// NewAdminStreamUseCase creates a new AdminStreamUseCase.
func NewAdminStreamUseCase(repo domain.StreamAdminRepository) *AdminStreamUseCase {
	return &AdminStreamUseCase{repo: repo}
}

func (uc *AdminStreamUseCase) GetStreamInfo(ctx context.Context, stream string) (*domain.StreamInfo, error) {
	return uc.repo.GetStreamInfo(ctx, stream)
}

func (uc *AdminStreamUseCase) GetGroupInfo(ctx context.Context, stream string) ([]domain.ConsumerGroupInfo, error) {
	return uc.repo.GetGroupInfo(ctx, stream)
}

func (uc *AdminStreamUseCase) GetPendingSummary(ctx context.Context, stream, group string) (*domain.PendingMessageSummary, error) {
	return uc.repo.GetPendingSummary(ctx, stream, group)
}

func (uc *AdminStreamUseCase) TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error) {
	if maxLen < 0 {
		return 0, ErrInvalidTrimLength
	}
	return uc.repo.TrimStream(ctx, stream, maxLen)
}
