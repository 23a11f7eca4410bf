package repository

import "context"

// Workspace is a directory owned by a single validation request.
type Workspace struct {
	ID   string
	Dir  string
	File string
}

type WorkspaceRepository interface {
	Create(ctx context.Context, code string) (Workspace, error)
	Remove(ws Workspace) error
}
