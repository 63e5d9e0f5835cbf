package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RouterFunc translates an endpoint name plus its inputs into a fully
// rendered argv. The returned slice must include argv[0].
type RouterFunc func(endpoint string, params map[string]string, args []string) ([]string, error)

var (
	// ErrNoRoute is returned when a router has no template for an endpoint.
	ErrNoRoute = errors.New("no route")
	// ErrMissingParam is returned when a template references an absent parameter.
	ErrMissingParam = errors.New("missing parameter")
)

// TemplateDriver composes a Driver with a routing function that renders
// concrete commands from endpoint names and parameters.
//
// Typical flow:
//  1. service calls Execute with Endpoint/Params/Args
//  2. router produces []string{argv0, ...}
//  3. delegate to the wrapped Driver with the rendered Command
type TemplateDriver struct {
	exec   Driver
	router RouterFunc
}

// NewTemplateDriver wraps exec with router.
func NewTemplateDriver(exec Driver, router RouterFunc) *TemplateDriver {
	return &TemplateDriver{exec: exec, router: router}
}

// Execute implements Driver by resolving the command via router and delegating
// to the wrapped Driver. A request that already carries a Command is passed
// through unchanged.
func (t *TemplateDriver) Execute(ctx context.Context, req ExecReq) (ExecResp, error) {
	if len(req.Command) > 0 {
		return t.exec.Execute(ctx, req)
	}
	argv, err := t.Render(req.Endpoint, req.Params, req.Args)
	if err != nil {
		return ExecResp{}, err
	}

	outReq := req
	outReq.Command = argv
	return t.exec.Execute(ctx, outReq)
}

// Render runs the router without executing anything.
func (t *TemplateDriver) Render(endpoint string, params map[string]string, args []string) ([]string, error) {
	if t.router == nil {
		return nil, fmt.Errorf("no router configured")
	}
	argv, err := t.router(endpoint, params, args)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("router produced empty command for %q", endpoint)
	}
	return argv, nil
}

// ArgsToken is a whole-token placeholder that splices the request's trailing
// positional arguments into argv, one token each.
const ArgsToken = "{args}"

// NewCommandRouter creates a template-based RouterFunc.
// routes maps endpoint -> command template (argv tokens).
// Supported placeholders:
//   - {endpoint}
//   - {param:KEY} (required; substituted values are never re-expanded)
//   - {args} as a whole token
//
// Unknown placeholders are left as-is.
func NewCommandRouter(routes map[string][]string) RouterFunc {
	return func(endpoint string, params map[string]string, args []string) ([]string, error) {
		tmpl, ok := routes[endpoint]
		if !ok {
			return nil, fmt.Errorf("%w for endpoint %q", ErrNoRoute, endpoint)
		}
		out := make([]string, 0, len(tmpl)+len(args))
		for _, tok := range tmpl {
			if tok == ArgsToken {
				out = append(out, args...)
				continue
			}
			v, err := expandToken(tok, endpoint, params)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func expandToken(tok, endpoint string, params map[string]string) (string, error) {
	out := strings.ReplaceAll(tok, "{endpoint}", endpoint)

	// {param:KEY} substitutions; scanning resumes after each inserted value.
	var b strings.Builder
	rest := out
	for {
		i := strings.Index(rest, "{param:")
		if i < 0 {
			b.WriteString(rest)
			break
		}
		j := strings.Index(rest[i:], "}")
		if j < 0 {
			b.WriteString(rest) // unclosed; leave as-is
			break
		}
		j = i + j
		key := rest[i+7 : j]
		val, ok := params[key]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
		}
		b.WriteString(rest[:i])
		b.WriteString(val)
		rest = rest[j+1:]
	}
	return b.String(), nil
}
