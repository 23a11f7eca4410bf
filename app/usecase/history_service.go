package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
)

type HistoryUsecase interface {
	Record(ctx context.Context, rec *entity.RequestRecord)
	GetRecord(ctx context.Context, id string) (*entity.RequestRecord, error)
	ListRecords(ctx context.Context, filter entity.RecordFilter) ([]*entity.RequestRecord, error)
}

var _ HistoryUsecase = (*HistoryService)(nil)

type HistoryService struct {
	repo      repository.RecordRepository
	notifiers []repository.RecordNotifier
	logger    *slog.Logger
	timeout   time.Duration
}

func NewHistoryService(
	repo repository.RecordRepository,
	notifiers []repository.RecordNotifier,
	logger *slog.Logger,
) *HistoryService {
	return &HistoryService{
		repo:      repo,
		notifiers: notifiers,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// Record stores rec and notifies listeners. Failures are logged only; a
// broken history store must not change an endpoint's answer.
func (s *HistoryService) Record(ctx context.Context, rec *entity.RequestRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("save request record failed", "record_id", rec.ID, "kind", rec.Kind, "err", err)
	}
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, rec); err != nil {
			s.logger.Warn("notify request record failed", "record_id", rec.ID, "err", err)
		}
	}
}

func (s *HistoryService) GetRecord(ctx context.Context, id string) (*entity.RequestRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("record id is required")
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

func (s *HistoryService) ListRecords(ctx context.Context, filter entity.RecordFilter) ([]*entity.RequestRecord, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("unknown record kind %q", filter.Kind)
	}
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}
