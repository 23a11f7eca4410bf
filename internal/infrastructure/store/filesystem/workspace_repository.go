package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/metrics"
)

const (
	MainFileName     = "main.tf"
	metadataFileName = "metadata.json"
)

// WorkspaceRepository hands out one directory per validation request under
// basePath, so concurrent requests never share a main.tf.
type WorkspaceRepository struct {
	basePath string
	keep     bool
}

var _ repository.WorkspaceRepository = (*WorkspaceRepository)(nil)

func NewWorkspaceRepository(basePath string, keep bool) (*WorkspaceRepository, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", basePath)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", basePath, err)
	}

	return &WorkspaceRepository{
		basePath: abs,
		keep:     keep,
	}, nil
}

func (r *WorkspaceRepository) BasePath() string {
	return r.basePath
}

func (r *WorkspaceRepository) Create(ctx context.Context, code string) (repository.Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(r.basePath, id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		metrics.IncError("workspace", "mkdir")
		return repository.Workspace{}, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	metrics.IncActiveWorkspaces()

	ws := repository.Workspace{
		ID:   id,
		Dir:  dir,
		File: filepath.Join(dir, MainFileName),
	}

	if err := os.WriteFile(ws.File, []byte(code), 0o644); err != nil {
		metrics.IncError("workspace", "write")
		_ = r.remove(ws)
		return repository.Workspace{}, fmt.Errorf("failed to write %s: %w", MainFileName, err)
	}

	if r.keep {
		if err := r.writeMetadata(ws, len(code)); err != nil {
			_ = r.remove(ws)
			return repository.Workspace{}, err
		}
	}

	return ws, nil
}

// Remove deletes the workspace unless the repository keeps workspaces for
// inspection.
func (r *WorkspaceRepository) Remove(ws repository.Workspace) error {
	if r.keep {
		return nil
	}
	return r.remove(ws)
}

func (r *WorkspaceRepository) remove(ws repository.Workspace) error {
	if ws.Dir == "" || filepath.Dir(ws.Dir) != r.basePath {
		return fmt.Errorf("refusing to remove %q outside %s", ws.Dir, r.basePath)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		metrics.IncError("workspace", "remove")
		return fmt.Errorf("failed to delete workspace directory: %w", err)
	}
	metrics.DecActiveWorkspaces()
	return nil
}

func (r *WorkspaceRepository) writeMetadata(ws repository.Workspace, size int) error {
	metadata := map[string]interface{}{
		"workspace_id": ws.ID,
		"created_at":   time.Now().UTC(),
		"file":         MainFileName,
		"size_bytes":   size,
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ws.Dir, metadataFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
