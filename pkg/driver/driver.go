package driver

import (
	"context"
	"errors"
	"time"
)

// ExecReq is the adapter-layer request for Execute.
// The caller provides a fully rendered command; nothing goes through a shell.
type ExecReq struct {
	// Fully rendered command; argv[0] is looked up on PATH when not absolute.
	Command []string

	// Endpoint that produced the command, used for logs and metrics only.
	Endpoint string
	// Named parameters and trailing positional arguments consumed by a
	// RouterFunc when Command is empty.
	Params map[string]string
	Args   []string

	Timeout time.Duration // zero => no explicit timeout
}

// ExecResp is the adapter-layer response for Execute.
type ExecResp struct {
	ExitCode int32
	// Output holds stdout and stderr merged in arrival order.
	Output string
}

// Driver defines the exec adapter interface.
type Driver interface {
	Execute(ctx context.Context, req ExecReq) (ExecResp, error)
}

var (
	// ErrSpawn marks failures to start the child process at all.
	ErrSpawn = errors.New("spawn error")
	// ErrExit marks a child that ran and exited non-zero.
	ErrExit = errors.New("non-zero exit")
	// ErrNotAllowed is returned when argv[0] is outside a configured allowlist.
	ErrNotAllowed = errors.New("binary not allowed")
	// ErrTerminated is returned when the driver killed the child on timeout.
	ErrTerminated = errors.New("terminated by driver (timeout)")
)
