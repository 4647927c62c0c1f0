// Package process runs external tools (pdftotext, LibreOffice, tesseract,
// Ghostscript) under a timeout, in their own process group and with a
// private temporary directory.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// DefaultTimeout bounds a call when the Runner has no timeout of its own.
const DefaultTimeout = 60 * time.Second

// ErrTimeout is returned when a call outlives its timeout.
var ErrTimeout = errors.New("subprocess timed out")

var log = logger.Named("process")

// Ensure Runner implements the interface.
var _ driven.CommandRunner = (*Runner)(nil)

// Runner executes commands. The zero value uses DefaultTimeout.
type Runner struct {
	Timeout time.Duration
	// Env is appended to the inherited environment.
	Env []string
}

// New creates a Runner with the given per-call timeout.
func New(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Run executes name with args and returns its standard output. When the
// timeout expires the whole process group is killed. TMP, TMPDIR and TEMP
// point at a directory that is removed when the call returns.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tmp, err := os.MkdirTemp("", "datascanner-proc-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Env = append(cmd.Env, "TMP="+tmp, "TMPDIR="+tmp, "TEMP="+tmp)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("running %s %s", name, strings.Join(args, " "))
	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, name, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), fmt.Errorf("%s exited with status %d: %s",
				name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}
