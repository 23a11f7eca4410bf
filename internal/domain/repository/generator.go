package repository

import (
	"context"

	"tfassist/internal/domain/entity"
)

// TextGenerator is the process-wide generation capability. Load is called
// once at startup and Close at shutdown; Generate is safe for concurrent use.
type TextGenerator interface {
	Load(ctx context.Context) error
	Generate(ctx context.Context, prompt string, opts entity.GenerationOptions) (string, error)
	Model() string
	Backend() string
	Close() error
}
