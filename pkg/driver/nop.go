package driver

import (
	"context"
	"strings"
)

// Nop implements Driver with a no-op success that echoes the rendered argv.
type Nop struct{}

func (Nop) Execute(ctx context.Context, req ExecReq) (ExecResp, error) {
	return ExecResp{
		ExitCode: 0,
		Output:   "noop:" + strings.Join(req.Command, " "),
	}, nil
}
