package docker

import (
	"context"
	"io"
	"log/slog"

	"github.com/artpar/shipyard/internal/shell/execx"
)

// =============================================================================
// Compose CLI Driver
// =============================================================================

// ComposeRequest identifies one compose project invocation.
type ComposeRequest struct {
	Project string   // compose project name, also the container name prefix root
	Dir     string   // working directory the file paths are relative to
	Files   []string // definition files in order; later files override earlier
	Env     []string // extra KEY=VALUE pairs visible to the compose files
}

func (r ComposeRequest) args(sub ...string) []string {
	args := []string{"compose", "-p", r.Project}
	for _, f := range r.Files {
		args = append(args, "-f", f)
	}
	return append(args, sub...)
}

// Compose drives `docker compose`.
type Compose struct {
	runner execx.Runner
	binary string
	stream io.Writer
	logger *slog.Logger
}

// NewCompose creates a driver. Build and start output is copied to stream when non-nil.
func NewCompose(runner execx.Runner, stream io.Writer, logger *slog.Logger) *Compose {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compose{
		runner: runner,
		binary: "docker",
		stream: stream,
		logger: logger.With("component", "compose"),
	}
}

func (c *Compose) run(ctx context.Context, req ComposeRequest, sub ...string) error {
	cmd := execx.Command{
		Dir:    req.Dir,
		Name:   c.binary,
		Args:   req.args(sub...),
		Env:    req.Env,
		Stream: c.stream,
	}
	c.logger.Info("running compose", "command", cmd.String())
	_, err := c.runner.Run(ctx, cmd)
	return err
}

// Up builds images and starts the project detached.
func (c *Compose) Up(ctx context.Context, req ComposeRequest) error {
	return c.run(ctx, req, "up", "--detach", "--build")
}

// Down stops and removes the project's containers.
func (c *Compose) Down(ctx context.Context, req ComposeRequest) error {
	return c.run(ctx, req, "down", "--remove-orphans")
}
