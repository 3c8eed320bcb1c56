package cmdexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

type Local struct {
	Shell string
}

func NewLocal() *Local {
	return &Local{Shell: "/bin/sh"}
}

// Execute runs command through the shell in its own process group. Both
// pipes are drained to EOF before the exit status is collected.
func (l *Local) Execute(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.Command(l.Shell, "-c", command) // #nosec G204
	setProcessGroup(cmd)

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start command: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		killProcessGroup(cmd)
	})
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(stdout, outPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(stderr, errPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return -1, fmt.Errorf("command aborted: %w", context.Cause(ctx))
	}
	if waitErr == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait for command: %w", waitErr)
}
