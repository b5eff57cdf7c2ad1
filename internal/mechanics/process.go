package mechanics

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/flog"
	"github.com/fromager-go/fromager/internal/hooks"
)

// Runner is an os/exec-backed implementation of hooks.ProcessRunner,
// the Go analogue of external_commands.run: it layers the caller's
// extra environment on top of the inherited one and logs the
// invocation before running it.
type Runner struct {
	Logger *flog.Logger
}

func NewRunner(logger *flog.Logger) *Runner {
	return &Runner{Logger: logger}
}

func (r *Runner) Run(ctx context.Context, c hooks.ProcessCmd) (string, error) {
	if len(c.Args) == 0 {
		return "", errors.New("no command given")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	env := os.Environ()
	for k, v := range c.Environ {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	if r.Logger != nil {
		r.Logger.Debugf("mechanics", "running: %v in %s", c.Args, c.Dir)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), errors.Wrapf(err, "command failed: %v\n%s", c.Args, out.String())
	}
	return out.String(), nil
}
