package llm

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
)

const (
	BackendHF     = "hf"
	BackendOpenAI = "openai"
)

// Settings selects and configures a generation backend.
type Settings struct {
	Backend string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New builds the generator named by s.Backend. The result still has to be
// loaded before use.
func New(s Settings, logger *slog.Logger) (repository.TextGenerator, error) {
	switch s.Backend {
	case BackendHF, "":
		return NewHFGenerator(s, logger), nil
	case BackendOpenAI:
		return NewOpenAIGenerator(s, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", s.Backend)
	}
}

// lifecycle tracks Load/Close for a backend.
type lifecycle struct {
	ready atomic.Bool
}

func (l *lifecycle) load(s Settings) error {
	if s.Model == "" {
		return fmt.Errorf("model identifier is required")
	}
	if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
		return fmt.Errorf("invalid base url %q: %w", s.BaseURL, err)
	}
	l.ready.Store(true)
	return nil
}

func (l *lifecycle) check() error {
	if !l.ready.Load() {
		return entity.ErrGeneratorNotReady
	}
	return nil
}

func (l *lifecycle) close() {
	l.ready.Store(false)
}
