// Package gateway turns endpoint invocations into child processes and
// normalizes every outcome into a single result string.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

// ErrUnknownEndpoint is returned by Invoke for names outside the endpoint table.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// ErrMissingParam is returned by Invoke when a required parameter is absent.
var ErrMissingParam = driver.ErrMissingParam

// directEndpoint labels Execute calls that did not come through Invoke.
const directEndpoint = "direct"

// Gateway executes tools through a Driver.
type Gateway struct {
	drv    driver.Driver
	render *driver.TemplateDriver
	log    zerolog.Logger
}

// New returns a Gateway running commands through drv.
func New(drv driver.Driver) *Gateway {
	return &Gateway{
		drv:    drv,
		render: driver.NewTemplateDriver(drv, driver.NewCommandRouter(routes)),
		log:    log.Logger.With().Str("component", "gateway").Logger(),
	}
}

// WithLogger replaces the gateway logger.
func (g *Gateway) WithLogger(l zerolog.Logger) *Gateway {
	g.log = l.With().Str("component", "gateway").Logger()
	return g
}

// Execute runs tool with args and returns the combined output. Any failure,
// including a missing binary, comes back as FormatError text; Execute never
// returns an error.
func (g *Gateway) Execute(ctx context.Context, tool string, args []string) string {
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, tool)
	argv = append(argv, args...)
	return g.run(ctx, directEndpoint, argv)
}

// Invoke renders the named endpoint and executes it. The error is non-nil
// only for unknown endpoints and missing parameters; tool failures are
// reported inside the returned string.
func (g *Gateway) Invoke(ctx context.Context, endpoint string, params map[string]string, args []string) (string, error) {
	ep, ok := Lookup(endpoint)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}
	if !ep.Variadic && len(args) > 0 {
		return "", fmt.Errorf("endpoint %q takes no positional args", endpoint)
	}
	argv, err := g.render.Render(ep.Name, params, args)
	if err != nil {
		return "", err
	}
	return g.run(ctx, ep.Name, argv), nil
}

// Argv renders the command an endpoint would run without executing it.
func (g *Gateway) Argv(endpoint string, params map[string]string, args []string) ([]string, error) {
	if _, ok := Lookup(endpoint); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}
	return g.render.Render(endpoint, params, args)
}

func (g *Gateway) run(ctx context.Context, endpoint string, argv []string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Str("endpoint", endpoint).Interface("panic", r).Msg("driver panicked")
			result = FormatError(argv, "")
		}
	}()

	resp, err := g.drv.Execute(ctx, driver.ExecReq{Command: argv, Endpoint: endpoint})
	if err != nil {
		g.log.Debug().Str("endpoint", endpoint).Err(err).Msg("tool failed")
		return FormatError(argv, resp.Output)
	}
	return resp.Output
}

// FormatError renders the diagnostic returned for failed invocations.
func FormatError(argv []string, output string) string {
	return "[ERROR]\nCommand: " + strings.Join(argv, " ") + "\nOutput:\n" + output
}
