package terraform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/metrics"
)

// Options configures the CLI wrapper. Zero timeouts disable the per-command
// deadline; the caller's context still applies.
type Options struct {
	Binary          string
	InitArgs        []string
	ValidateArgs    []string
	InitTimeout     time.Duration
	ValidateTimeout time.Duration
	PluginCacheDir  string
}

var (
	DefaultInitArgs     = []string{"init", "-input=false", "-backend=false", "-no-color"}
	DefaultValidateArgs = []string{"validate", "-no-color"}
)

func DefaultOptions() Options {
	return Options{
		Binary:          "terraform",
		InitArgs:        DefaultInitArgs,
		ValidateArgs:    DefaultValidateArgs,
		InitTimeout:     2 * time.Minute,
		ValidateTimeout: time.Minute,
	}
}

type CLI struct {
	opts   Options
	logger *slog.Logger
}

var _ repository.TerraformRunner = (*CLI)(nil)

func NewCLI(opts Options, logger *slog.Logger) *CLI {
	def := DefaultOptions()
	if opts.Binary == "" {
		opts.Binary = def.Binary
	}
	if len(opts.InitArgs) == 0 {
		opts.InitArgs = def.InitArgs
	}
	if len(opts.ValidateArgs) == 0 {
		opts.ValidateArgs = def.ValidateArgs
	}
	return &CLI{opts: opts, logger: logger}
}

// CheckInstalled reports whether the binary can be found.
func (c *CLI) CheckInstalled() error {
	if _, err := exec.LookPath(c.opts.Binary); err != nil {
		return fmt.Errorf("terraform binary %q not found: %w", c.opts.Binary, err)
	}
	return nil
}

func (c *CLI) Init(ctx context.Context, dir string) (repository.CommandResult, error) {
	return c.run(ctx, "init", c.opts.InitTimeout, dir, c.opts.InitArgs)
}

func (c *CLI) Validate(ctx context.Context, dir string) (repository.CommandResult, error) {
	return c.run(ctx, "validate", c.opts.ValidateTimeout, dir, c.opts.ValidateArgs)
}

func (c *CLI) run(parent context.Context, name string, timeout time.Duration, dir string, args []string) (repository.CommandResult, error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.opts.Binary, args...)
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.Env = c.env()
	// provider plugins may outlive a killed terraform and hold the pipes open
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := repository.CommandResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Output:   out.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		metrics.IncToolInvocation(name, "error")
		return res, fmt.Errorf("terraform %s canceled or timed out: %w", name, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		metrics.IncToolInvocation(name, "ok")
	case errors.As(err, &exitErr):
		metrics.IncToolInvocation(name, "nonzero")
	default:
		metrics.IncToolInvocation(name, "error")
		return res, fmt.Errorf("terraform %s failed to run: %w", name, err)
	}

	c.logger.Debug("terraform command finished",
		"command", name, "dir", dir, "exit_code", res.ExitCode, "duration", res.Duration)
	return res, nil
}

func (c *CLI) env() []string {
	env := append(os.Environ(), "TF_IN_AUTOMATION=1")
	if c.opts.PluginCacheDir != "" {
		env = append(env, "TF_PLUGIN_CACHE_DIR="+c.opts.PluginCacheDir)
	}
	return env
}
