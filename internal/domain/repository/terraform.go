package repository

import (
	"context"
	"time"

	"tfassist/internal/domain/entity"
)

// CommandResult is the outcome of a CLI run that started and finished.
type CommandResult struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// TerraformRunner runs terraform subcommands inside dir. An error means the
// command could not be run to completion (missing binary, timeout, cancel);
// a non-zero exit is reported through CommandResult.
type TerraformRunner interface {
	Init(ctx context.Context, dir string) (CommandResult, error)
	Validate(ctx context.Context, dir string) (CommandResult, error)
}

// StaticAnalyzer inspects Terraform source without running the CLI.
type StaticAnalyzer interface {
	Analyze(fileName, code string) (*entity.AnalysisResult, error)
}
