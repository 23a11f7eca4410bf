package repository

import (
	"context"

	"tfassist/internal/domain/entity"
)

// RecordRepository stores request history.
type RecordRepository interface {
	Create(ctx context.Context, rec *entity.RequestRecord) error
	GetByID(ctx context.Context, id string) (*entity.RequestRecord, error)
	List(ctx context.Context, filter entity.RecordFilter) ([]*entity.RequestRecord, error)
}

// RecordNotifier fans a finished record out to listeners.
type RecordNotifier interface {
	Notify(ctx context.Context, rec *entity.RequestRecord) error
}
