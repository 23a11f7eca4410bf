package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/store/filesystem"
	"tfassist/internal/infrastructure/store/memory"
	"tfassist/internal/infrastructure/validator"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	opts    []entity.GenerationOptions
	reply   func(prompt string) string
	err     error
}

func (g *fakeGenerator) Load(ctx context.Context) error { return nil }
func (g *fakeGenerator) Close() error                   { return nil }
func (g *fakeGenerator) Model() string                  { return "fake-model" }
func (g *fakeGenerator) Backend() string                { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, opts entity.GenerationOptions) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if g.reply != nil {
		return g.reply(prompt), nil
	}
	return prompt + " generated", nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// fakeRunner decides validate's exit code from the main.tf it finds in dir.
type fakeRunner struct {
	initExit    int
	initErr     error
	validateErr error
	initCalls   int
	mu          sync.Mutex
}

func (r *fakeRunner) Init(ctx context.Context, dir string) (repository.CommandResult, error) {
	r.mu.Lock()
	r.initCalls++
	r.mu.Unlock()
	if r.initErr != nil {
		return repository.CommandResult{ExitCode: -1}, r.initErr
	}
	return repository.CommandResult{ExitCode: r.initExit, Output: "init output"}, nil
}

func (r *fakeRunner) Validate(ctx context.Context, dir string) (repository.CommandResult, error) {
	if r.validateErr != nil {
		return repository.CommandResult{ExitCode: -1}, r.validateErr
	}
	content, err := os.ReadFile(filepath.Join(dir, filesystem.MainFileName))
	if err != nil {
		return repository.CommandResult{}, err
	}
	if strings.Contains(string(content), "invalid") {
		return repository.CommandResult{ExitCode: 1, Output: "Error: Unsupported block type"}, nil
	}
	return repository.CommandResult{ExitCode: 0, Output: "Success!"}, nil
}

type failingWorkspaces struct{}

func (failingWorkspaces) Create(ctx context.Context, code string) (repository.Workspace, error) {
	return repository.Workspace{}, errors.New("disk full")
}

func (failingWorkspaces) Remove(ws repository.Workspace) error { return nil }

type recordingNotifier struct {
	mu      sync.Mutex
	records []*entity.RequestRecord
}

func (n *recordingNotifier) Notify(ctx context.Context, rec *entity.RequestRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
	return nil
}

type fixture struct {
	svc        *TerraformService
	gen        *fakeGenerator
	runner     *fakeRunner
	repo       *memory.RecordRepo
	notifier   *recordingNotifier
	workspaces *filesystem.WorkspaceRepository
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws, err := filesystem.NewWorkspaceRepository(t.TempDir(), false)
	if err != nil {
		t.Fatalf("workspace repo: %v", err)
	}
	f := &fixture{
		gen:        &fakeGenerator{},
		runner:     &fakeRunner{},
		repo:       memory.NewRecordRepo(100),
		notifier:   &recordingNotifier{},
		workspaces: ws,
	}
	history := NewHistoryService(f.repo, []repository.RecordNotifier{f.notifier}, discardLogger())
	f.svc = NewTerraformService(f.gen, f.runner, ws, validator.NewTerraformAnalyzer(), history, ServiceOptions{}, discardLogger())
	return f
}
