// Package memory keeps request history in process memory. It is used when no
// MongoDB URI is configured.
package memory

import (
	"context"
	"sync"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/metrics"
)

const storeName = "memory"

// RecordRepo is a bounded ring of the most recent records.
type RecordRepo struct {
	mu       sync.RWMutex
	capacity int
	records  []*entity.RequestRecord
	byID     map[string]*entity.RequestRecord
}

var _ repository.RecordRepository = (*RecordRepo)(nil)

func NewRecordRepo(capacity int) *RecordRepo {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RecordRepo{
		capacity: capacity,
		byID:     make(map[string]*entity.RequestRecord),
	}
}

func (r *RecordRepo) Create(ctx context.Context, rec *entity.RequestRecord) error {
	metrics.IncHistoryOp(storeName, "put")

	cp := *rec
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == r.capacity {
		oldest := r.records[0]
		delete(r.byID, oldest.ID)
		r.records = r.records[1:]
	}
	r.records = append(r.records, &cp)
	r.byID[cp.ID] = &cp
	return nil
}

func (r *RecordRepo) GetByID(ctx context.Context, id string) (*entity.RequestRecord, error) {
	metrics.IncHistoryOp(storeName, "get")

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, entity.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// List returns records newest first.
func (r *RecordRepo) List(ctx context.Context, filter entity.RecordFilter) ([]*entity.RequestRecord, error) {
	metrics.IncHistoryOp(storeName, "list")

	limit := filter.NormalizedLimit()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.RequestRecord, 0, min(limit, len(r.records)))
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.records[i]
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}
