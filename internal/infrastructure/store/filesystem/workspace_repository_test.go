package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tfassist/internal/domain/repository"
)

func TestCreateAndRemoveWorkspace(t *testing.T) {
	repo, err := NewWorkspaceRepository(filepath.Join(t.TempDir(), "ws"), false)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}

	ws, err := repo.Create(context.Background(), `terraform {}`)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Dir(ws.Dir) != repo.BasePath() {
		t.Fatalf("workspace %s not under %s", ws.Dir, repo.BasePath())
	}

	content, err := os.ReadFile(ws.File)
	if err != nil {
		t.Fatalf("read main.tf: %v", err)
	}
	if string(content) != `terraform {}` {
		t.Fatalf("unexpected content %q", content)
	}

	if err := repo.Remove(ws); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
}

func TestWorkspacesAreDistinct(t *testing.T) {
	repo, err := NewWorkspaceRepository(t.TempDir(), false)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}

	a, err := repo.Create(context.Background(), "a")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := repo.Create(context.Background(), "b")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.Dir == b.Dir {
		t.Fatal("expected distinct workspace directories")
	}

	got, _ := os.ReadFile(a.File)
	if string(got) != "a" {
		t.Fatalf("workspace a overwritten: %q", got)
	}
}

func TestKeepWorkspaces(t *testing.T) {
	repo, err := NewWorkspaceRepository(t.TempDir(), true)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	ws, err := repo.Create(context.Background(), "x")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Remove(ws); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Dir, metadataFileName)); err != nil {
		t.Fatalf("expected kept workspace with metadata: %v", err)
	}
}

func TestRemoveRefusesForeignPath(t *testing.T) {
	repo, err := NewWorkspaceRepository(t.TempDir(), false)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	other := t.TempDir()
	if err := repo.remove(repository.Workspace{Dir: other}); err == nil {
		t.Fatal("expected refusal for path outside base")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("foreign dir should survive: %v", err)
	}
}

func TestBasePathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewWorkspaceRepository(file, false); err == nil {
		t.Fatal("expected error for non-directory base path")
	}
}
