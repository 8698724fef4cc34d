package service

import (
	"context"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/database"
)

type HistoryService struct {
	repo database.PositionRepository
}

func NewHistoryService(repo database.PositionRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

func (s *HistoryService) Latest(ctx context.Context, journeyID string) (*domain.PositionReport, error) {
	return s.repo.Latest(ctx, journeyID)
}

func (s *HistoryService) History(ctx context.Context, query *domain.HistoryQuery) ([]domain.PositionReport, error) {
	if !query.End.IsZero() && query.End.Before(query.Start) {
		return nil, domain.NewAppError(domain.ErrCodeInvalidTimeRange, "end must not be before start", nil)
	}
	return s.repo.History(ctx, query)
}
