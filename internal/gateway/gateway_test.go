package gateway

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

type captureDriver struct {
	mu   sync.Mutex
	reqs []driver.ExecReq
	resp driver.ExecResp
	err  error
}

func (c *captureDriver) Execute(_ context.Context, req driver.ExecReq) (driver.ExecResp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return c.resp, c.err
}

type panicDriver struct{}

func (panicDriver) Execute(context.Context, driver.ExecReq) (driver.ExecResp, error) {
	panic("boom")
}

func lookupOrSkip(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found in PATH; skipping", name)
	}
	return p
}

func TestInvoke_ArgumentOrder(t *testing.T) {
	cases := []struct {
		endpoint string
		params   map[string]string
		args     []string
		want     []string
	}{
		{"thc6", map[string]string{"command": "alive6"}, []string{"-i", "eth0"}, []string{"alive6", "-i", "eth0"}},
		{"alive6", map[string]string{"iface": "eth0", "target": "ff02::1"}, nil, []string{"alive6", "eth0", "ff02::1"}},
		{"thcping6", map[string]string{"src": "A", "iface": "B", "dst": "C"}, nil, []string{"thcping6", "-F", "A", "B", "x", "C"}},
		{"detect_new_ip6", map[string]string{"iface": "eth0"}, nil, []string{"detect-new-ip6", "eth0"}},
		{"flood_router6", map[string]string{"iface": "eth0"}, nil, []string{"flood_router6", "eth0"}},
		{"dos_new_ip6", map[string]string{"iface": "eth0", "target": "T"}, nil, []string{"dos-new-ip6", "eth0", "T"}},
		{"fake_router6", map[string]string{"iface": "eth0", "prefix": "2001:db8::/64"}, nil, []string{"fake_router6", "eth0", "2001:db8::/64"}},
		{"parasite6", map[string]string{"iface": "eth0", "victim": "V", "router": "R"}, nil, []string{"parasite6", "eth0", "V", "R"}},
		{"exploit6", map[string]string{"iface": "eth0", "dst": "D"}, nil, []string{"exploit6", "eth0", "D"}},
		{"flood_advertise6", map[string]string{"iface": "eth0", "target": "T"}, nil, []string{"flood_advertise6", "eth0", "T"}},
		{"dump_router6", map[string]string{"iface": "eth0"}, nil, []string{"dump_router6", "eth0"}},
	}
	if len(cases) != len(Endpoints()) {
		t.Fatalf("cases cover %d endpoints, table has %d", len(cases), len(Endpoints()))
	}
	for _, tc := range cases {
		t.Run(tc.endpoint, func(t *testing.T) {
			drv := &captureDriver{resp: driver.ExecResp{Output: "ok"}}
			out, err := New(drv).Invoke(context.Background(), tc.endpoint, tc.params, tc.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != "ok" {
				t.Fatalf("result = %q, want ok", out)
			}
			if len(drv.reqs) != 1 {
				t.Fatalf("driver called %d times", len(drv.reqs))
			}
			if got := drv.reqs[0].Command; !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("argv = %q, want %q", got, tc.want)
			}
			if drv.reqs[0].Endpoint != tc.endpoint {
				t.Fatalf("endpoint label = %q", drv.reqs[0].Endpoint)
			}
		})
	}
}

func TestInvoke_Errors(t *testing.T) {
	g := New(&captureDriver{})

	if _, err := g.Invoke(context.Background(), "nmap", nil, nil); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("err = %v, want ErrUnknownEndpoint", err)
	}
	if _, err := g.Invoke(context.Background(), "alive6", map[string]string{"iface": "eth0"}, nil); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("err = %v, want ErrMissingParam", err)
	}
	if _, err := g.Invoke(context.Background(), "dump_router6", map[string]string{"iface": "eth0"}, []string{"extra"}); err == nil {
		t.Fatalf("expected error for positional args on fixed endpoint")
	}
}

func TestExecute_FailureIsFormatted(t *testing.T) {
	drv := &captureDriver{
		resp: driver.ExecResp{ExitCode: 1, Output: "partial output\n"},
		err:  driver.ErrExit,
	}
	got := New(drv).Execute(context.Background(), "alive6", []string{"eth0", "ff02::1"})
	want := "[ERROR]\nCommand: alive6 eth0 ff02::1\nOutput:\npartial output\n"
	if got != want {
		t.Fatalf("result = %q, want %q", got, want)
	}
}

func TestExecute_RecoversDriverPanic(t *testing.T) {
	got := New(panicDriver{}).Execute(context.Background(), "exploit6", []string{"eth0"})
	if got != "[ERROR]\nCommand: exploit6 eth0\nOutput:\n" {
		t.Fatalf("result = %q", got)
	}
}

func TestExecute_RealProcess(t *testing.T) {
	sh := lookupOrSkip(t, "sh")
	g := New(driver.NewExecDriver(driver.Config{}))

	t.Run("success is verbatim", func(t *testing.T) {
		got := g.Execute(context.Background(), sh, []string{"-c", `printf '  two words \n\n'`})
		if got != "  two words \n\n" {
			t.Fatalf("result = %q", got)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		args := []string{"-c", "echo half-done; exit 2"}
		got := g.Execute(context.Background(), sh, args)
		prefix := "[ERROR]\nCommand: " + sh + " -c echo half-done; exit 2\nOutput:\n"
		if !strings.HasPrefix(got, prefix) {
			t.Fatalf("result = %q, want prefix %q", got, prefix)
		}
		if got != prefix+"half-done\n" {
			t.Fatalf("result = %q", got)
		}
	})

	t.Run("missing executable", func(t *testing.T) {
		got := g.Execute(context.Background(), "thc6gw-missing-tool", []string{"eth0", "a b"})
		if got != "[ERROR]\nCommand: thc6gw-missing-tool eth0 a b\nOutput:\n" {
			t.Fatalf("result = %q", got)
		}
	})

	t.Run("metacharacters stay literal", func(t *testing.T) {
		got := g.Execute(context.Background(), sh, []string{"-c", `printf '%s' "$1"`, "sh", "$(echo pwned); ls | wc"})
		if got != "$(echo pwned); ls | wc" {
			t.Fatalf("result = %q", got)
		}
	})
}

func TestEndpointsAreImmutable(t *testing.T) {
	eps := Endpoints()
	eps[0].Name = "mutated"
	eps[1].Template[0] = "rm"

	if eps2 := Endpoints(); eps2[0].Name != GenericEndpoint || eps2[1].Template[0] != "alive6" {
		t.Fatalf("endpoint table mutated through copy: %+v", eps2[:2])
	}
	ep, ok := Lookup("alive6")
	if !ok || ep.Template[0] != "alive6" {
		t.Fatalf("lookup alive6 = %+v, %v", ep, ok)
	}
}

func TestArgv(t *testing.T) {
	g := New(&captureDriver{})
	argv, err := g.Argv("parasite6", map[string]string{"iface": "eth0", "victim": "v", "router": "r"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(argv, []string{"parasite6", "eth0", "v", "r"}) {
		t.Fatalf("argv = %q", argv)
	}
	if _, err := g.Argv("nope", nil, nil); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("err = %v", err)
	}
}
