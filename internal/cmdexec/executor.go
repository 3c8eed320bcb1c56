// Package cmdexec runs task commands on the local host or over SSH and
// streams their output to caller supplied writers.
package cmdexec

import (
	"context"
	"io"
)

// Executor runs a command to completion.
//
// A process that ran and exited yields its exit code and a nil error, even
// when the code is nonzero. A failure of the execution channel itself
// (spawn failure, connection or session failure, cancellation) yields a
// non-nil error and a code of -1.
type Executor interface {
	Execute(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)

func (f ExecutorFunc) Execute(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	return f(ctx, command, stdout, stderr)
}
