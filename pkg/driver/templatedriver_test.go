package driver_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	d "github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

func TestCommandRouter_Placeholders(t *testing.T) {
	router := d.NewCommandRouter(map[string][]string{
		"thcping6": {"thcping6", "-F", "{param:src}", "{param:iface}", "x", "{param:dst}"},
		"thc6":     {"{param:command}", d.ArgsToken},
		"label":    {"echo", "{endpoint}:{param:a}-{param:b}"},
	})

	cases := []struct {
		name     string
		endpoint string
		params   map[string]string
		args     []string
		want     []string
	}{
		{"ordered", "thcping6", map[string]string{"src": "A", "iface": "B", "dst": "C"}, nil, []string{"thcping6", "-F", "A", "B", "x", "C"}},
		{"spread args", "thc6", map[string]string{"command": "alive6"}, []string{"eth0", "ff02::1"}, []string{"alive6", "eth0", "ff02::1"}},
		{"no args", "thc6", map[string]string{"command": "alive6"}, nil, []string{"alive6"}},
		{"embedded", "label", map[string]string{"a": "1", "b": "2"}, nil, []string{"echo", "label:1-2"}},
		{"no re-expansion", "label", map[string]string{"a": "{param:b}", "b": "x"}, nil, []string{"echo", "label:{param:b}-x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := router(tc.endpoint, tc.params, tc.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("argv = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCommandRouter_Errors(t *testing.T) {
	router := d.NewCommandRouter(map[string][]string{
		"alive6": {"alive6", "{param:iface}", "{param:target}"},
	})
	if _, err := router("nope", nil, nil); !errors.Is(err, d.ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
	if _, err := router("alive6", map[string]string{"iface": "eth0"}, nil); !errors.Is(err, d.ErrMissingParam) {
		t.Fatalf("err = %v, want ErrMissingParam", err)
	}
}

func TestTemplateDriver_EchoRoute(t *testing.T) {
	echo := lookupOrSkip(t, "echo")

	router := d.NewCommandRouter(map[string][]string{
		"echo": {echo, "{param:msg}", d.ArgsToken},
	})
	drv := d.NewTemplateDriver(d.NewExecDriver(d.Config{}), router)

	resp, err := drv.Execute(context.Background(), d.ExecReq{
		Endpoint: "echo",
		Params:   map[string]string{"msg": "hello"},
		Args:     []string{"subj-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", resp.ExitCode)
	}
	if want := "hello subj-1\n"; resp.Output != want {
		t.Fatalf("output = %q, want %q", resp.Output, want)
	}
}

func TestTemplateDriver_PassesRenderedCommandThrough(t *testing.T) {
	drv := d.NewTemplateDriver(d.Nop{}, d.NewCommandRouter(nil))

	resp, err := drv.Execute(context.Background(), d.ExecReq{Command: []string{"dump_router6", "eth0"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output != "noop:dump_router6 eth0" {
		t.Fatalf("output = %q", resp.Output)
	}
}

func TestTemplateDriver_NoRoute(t *testing.T) {
	drv := d.NewTemplateDriver(d.Nop{}, d.NewCommandRouter(map[string][]string{}))

	_, err := drv.Execute(context.Background(), d.ExecReq{Endpoint: "not-exist"})
	if err == nil {
		t.Fatalf("expected error for missing route, got nil")
	}
}
