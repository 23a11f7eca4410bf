package entity

import (
	"time"

	"github.com/google/uuid"
)

type RecordKind string

const (
	RecordKindGenerate RecordKind = "generate"
	RecordKindValidate RecordKind = "validate"
	RecordKindExplain  RecordKind = "explain"
	RecordKindAnalyze  RecordKind = "analyze"
)

func (k RecordKind) Valid() bool {
	switch k {
	case RecordKindGenerate, RecordKindValidate, RecordKindExplain, RecordKindAnalyze:
		return true
	}
	return false
}

type RecordStatus string

const (
	RecordStatusSucceeded RecordStatus = "succeeded"
	RecordStatusFailed    RecordStatus = "failed" // request handled, result negative (invalid code)
	RecordStatusError     RecordStatus = "error"
)

// RequestRecord is the history entry written for every handled request.
type RequestRecord struct {
	ID          string       `json:"id" bson:"id"`
	Kind        RecordKind   `json:"kind" bson:"kind"`
	Status      RecordStatus `json:"status" bson:"status"`
	Provider    string       `json:"provider,omitempty" bson:"provider,omitempty"`
	Model       string       `json:"model,omitempty" bson:"model,omitempty"`
	Input       string       `json:"input" bson:"input"`
	Output      string       `json:"output,omitempty" bson:"output,omitempty"`
	Diagnostics string       `json:"diagnostics,omitempty" bson:"diagnostics,omitempty"`
	ErrorKind   ErrorKind    `json:"error_kind,omitempty" bson:"error_kind,omitempty"`
	Error       string       `json:"error,omitempty" bson:"error,omitempty"`
	DurationMs  int64        `json:"duration_ms" bson:"duration_ms"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
}

func NewRequestRecord(kind RecordKind, input string) *RequestRecord {
	return &RequestRecord{
		ID:        uuid.New().String(),
		Kind:      kind,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}
}

// Finish stamps the duration and outcome. A nil err with failed=false marks
// the record succeeded.
func (r *RequestRecord) Finish(started time.Time, failed bool, err error) {
	r.DurationMs = time.Since(started).Milliseconds()
	switch {
	case err != nil:
		r.Status = RecordStatusError
		r.Error = err.Error()
		r.ErrorKind = KindOf(err)
	case failed:
		r.Status = RecordStatusFailed
	default:
		r.Status = RecordStatusSucceeded
	}
}

// RecordFilter narrows history listings. Zero values mean "any".
type RecordFilter struct {
	Kind  RecordKind
	Limit int
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

func (f RecordFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultHistoryLimit
	case f.Limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return f.Limit
}
