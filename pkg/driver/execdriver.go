package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the behavior of ExecDriver. The zero value runs any binary
// with no concurrency limit and no timeout.
type Config struct {
	// Absolute paths of allowed binaries for argv[0]. Empty together with
	// AllowedBinariesFile means every binary on PATH may run.
	AllowedBinaries []string

	// Optional path to a newline-separated allowlist file. Each non-empty,
	// non-comment line must be an absolute path to an allowed binary. Lines
	// beginning with '#' are treated as comments. If set, entries from this
	// file are UNIONed with AllowedBinaries.
	AllowedBinariesFile string

	// Minimum interval between allowlist file reload checks. If zero, defaults
	// to 2 seconds. The file is re-read only when its mtime changes.
	AllowedBinariesReload time.Duration

	// Number of concurrent execs; zero or negative means unlimited.
	MaxConcurrency int

	// Applied when a request carries no Timeout; zero means wait forever.
	DefaultTimeout time.Duration

	// Grace period between SIGTERM and SIGKILL when timing out.
	TerminationGrace time.Duration // default 5s

	// HonorContext kills the child when the request context is canceled.
	// Off by default: a disconnecting caller does not stop a running tool.
	HonorContext bool

	// Logger for exec.start / exec.finish events; nil uses the global logger.
	Logger *zerolog.Logger

	// Recorder receives per-invocation telemetry; nil disables it.
	Recorder Recorder
}

// Recorder receives per-invocation telemetry from ExecDriver.
type Recorder interface {
	ExecStarted(endpoint string)
	ExecFinished(endpoint, outcome string, d time.Duration)
}

// Outcomes reported to Recorder.ExecFinished.
const (
	OutcomeSuccess    = "success"
	OutcomeExitError  = "exit_error"
	OutcomeSpawnError = "spawn_error"
	OutcomeDenied     = "denied"
	OutcomeTimeout    = "timeout"
)

type ExecDriver struct {
	cfg  Config
	log  zerolog.Logger
	sema chan struct{}

	// metrics
	mActive  int64  // gauge
	mSuccess uint64 // counter
	mFailure uint64 // counter

	// dynamic allowlist (file-backed)
	allowMu        sync.RWMutex
	allowSet       map[string]struct{}
	allowLastMod   time.Time
	allowLastCheck time.Time
}

// NewExecDriver creates a Driver that executes local binaries directly.
func NewExecDriver(cfg Config) *ExecDriver {
	if cfg.TerminationGrace <= 0 {
		cfg.TerminationGrace = 5 * time.Second
	}
	if cfg.AllowedBinariesReload <= 0 {
		cfg.AllowedBinariesReload = 2 * time.Second
	}
	d := &ExecDriver{cfg: cfg}
	if cfg.Logger != nil {
		d.log = cfg.Logger.With().Str("component", "execdriver").Logger()
	} else {
		d.log = log.Logger.With().Str("component", "execdriver").Logger()
	}
	if cfg.MaxConcurrency > 0 {
		d.sema = make(chan struct{}, cfg.MaxConcurrency)
	}
	// Initialize allowlist cache if a file is configured
	if cfg.AllowedBinariesFile != "" {
		_ = d.reloadAllowlistIfNeeded(true)
	}
	return d
}

// Execute runs req.Command and waits for it to exit. A non-zero exit still
// returns the captured output alongside an error wrapping ErrExit.
func (d *ExecDriver) Execute(ctx context.Context, req ExecReq) (ExecResp, error) {
	if len(req.Command) == 0 {
		return ExecResp{ExitCode: -1}, fmt.Errorf("%w: empty command", ErrSpawn)
	}
	start := time.Now()
	if d.cfg.Recorder != nil {
		d.cfg.Recorder.ExecStarted(req.Endpoint)
	}

	argv0 := req.Command[0]
	if d.allowlistEnabled() {
		resolved := argv0
		if !filepath.IsAbs(argv0) {
			p, err := exec.LookPath(argv0)
			if err != nil {
				d.finish(req, OutcomeSpawnError, start)
				return ExecResp{ExitCode: -1}, fmt.Errorf("%w: binary not found: %s", ErrSpawn, argv0)
			}
			resolved = p
		}
		if !d.isAllowedBinary(resolved) {
			d.finish(req, OutcomeDenied, start)
			return ExecResp{ExitCode: -1}, fmt.Errorf("%w: %s", ErrNotAllowed, resolved)
		}
	}

	// Concurrency gate
	if d.sema != nil {
		d.sema <- struct{}{}
		defer func() { <-d.sema }()
	}

	atomic.AddInt64(&d.mActive, 1)
	defer atomic.AddInt64(&d.mActive, -1)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = d.cfg.DefaultTimeout
	}

	// Build command. Arguments are passed positionally, never through a shell.
	cmd := exec.Command(argv0, req.Command[1:]...)
	if timeout > 0 || d.cfg.HonorContext {
		// Own process group so TERM/KILL reach the tool's children too.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	// A single writer for both streams keeps them interleaved in arrival order;
	// os/exec serializes writes when Stdout and Stderr are the same value.
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	d.log.Debug().
		Str("event", "exec.start").
		Str("endpoint", req.Endpoint).
		Str("argv0", argv0).
		Int("args_len", len(req.Command)-1).
		Dur("timeout", timeout).
		Send()
	if err := cmd.Start(); err != nil {
		d.log.Warn().
			Str("event", "exec.spawn_error").
			Str("endpoint", req.Endpoint).
			Str("argv0", argv0).
			Err(err).
			Send()
		d.finish(req, OutcomeSpawnError, start)
		return ExecResp{ExitCode: -1}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	var cancel <-chan struct{}
	if d.cfg.HonorContext {
		cancel = ctx.Done()
	}

	var waitErr error
	terminated := false
	select {
	case waitErr = <-done:
	case <-timer:
		waitErr = d.terminateProcessGroup(cmd.Process.Pid, done)
		terminated = true
	case <-cancel:
		waitErr = d.terminateProcessGroup(cmd.Process.Pid, done)
		terminated = true
	}

	exitCode := int32(-1)
	if cmd.ProcessState != nil {
		exitCode = int32(cmd.ProcessState.ExitCode())
	}
	resp := ExecResp{ExitCode: exitCode, Output: combined.String()}

	outcome := OutcomeSuccess
	var err error
	switch {
	case terminated:
		outcome = OutcomeTimeout
		err = ErrTerminated
	case waitErr != nil:
		outcome = OutcomeExitError
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			err = fmt.Errorf("%w: %v", ErrExit, waitErr)
		} else {
			err = fmt.Errorf("wait: %w", waitErr)
		}
	}

	dur := d.finish(req, outcome, start)
	ev := d.log.Info()
	if err != nil {
		ev = d.log.Warn().Err(err)
	}
	ev.Str("event", "exec.finish").
		Str("endpoint", req.Endpoint).
		Str("argv0", argv0).
		Int32("exit_code", exitCode).
		Dur("duration", dur).
		Int("output_bytes", combined.Len()).
		Send()
	return resp, err
}

func (d *ExecDriver) finish(req ExecReq, outcome string, start time.Time) time.Duration {
	dur := time.Since(start)
	if outcome == OutcomeSuccess {
		atomic.AddUint64(&d.mSuccess, 1)
	} else {
		atomic.AddUint64(&d.mFailure, 1)
	}
	if d.cfg.Recorder != nil {
		d.cfg.Recorder.ExecFinished(req.Endpoint, outcome, dur)
	}
	return dur
}

func (d *ExecDriver) allowlistEnabled() bool {
	return len(d.cfg.AllowedBinaries) > 0 || d.cfg.AllowedBinariesFile != ""
}

func (d *ExecDriver) isAllowedBinary(path string) bool {
	// Normalize path to compare against allowlist set
	p := path
	if rp, err := filepath.EvalSymlinks(path); err == nil {
		p = rp
	}

	for _, allowed := range d.cfg.AllowedBinaries {
		if allowed == p || allowed == path {
			return true
		}
	}

	if d.cfg.AllowedBinariesFile != "" {
		_ = d.reloadAllowlistIfNeeded(false)
		d.allowMu.RLock()
		_, ok := d.allowSet[p]
		d.allowMu.RUnlock()
		if ok {
			return true
		}
	}
	return false
}

// reloadAllowlistIfNeeded refreshes the file-backed allowlist if enough time
// has passed since the last check, and the file's mtime has changed.
func (d *ExecDriver) reloadAllowlistIfNeeded(force bool) error {
	if d.cfg.AllowedBinariesFile == "" {
		return nil
	}
	now := time.Now()
	d.allowMu.RLock()
	lastCheck := d.allowLastCheck
	d.allowMu.RUnlock()
	if !force && now.Sub(lastCheck) < d.cfg.AllowedBinariesReload {
		return nil
	}
	fi, err := os.Stat(d.cfg.AllowedBinariesFile)
	if err != nil {
		// If file missing temporarily, keep previous set
		d.touchAllowCheck(now)
		return nil
	}
	modTime := fi.ModTime()
	d.allowMu.RLock()
	same := d.allowLastMod.Equal(modTime)
	d.allowMu.RUnlock()
	if !force && same {
		d.touchAllowCheck(now)
		return nil
	}
	b, err := os.ReadFile(d.cfg.AllowedBinariesFile)
	if err != nil {
		d.touchAllowCheck(now)
		return nil
	}
	m := parseAllowlist(string(b))
	d.allowMu.Lock()
	d.allowSet = m
	d.allowLastMod = modTime
	d.allowLastCheck = now
	d.allowMu.Unlock()
	d.log.Info().Str("file", d.cfg.AllowedBinariesFile).Int("entries", len(m)).Msg("allowlist reloaded")
	return nil
}

func (d *ExecDriver) touchAllowCheck(now time.Time) {
	d.allowMu.Lock()
	d.allowLastCheck = now
	d.allowMu.Unlock()
}

func parseAllowlist(raw string) map[string]struct{} {
	lines := strings.Split(raw, "\n")
	m := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		// Inline comments: strip trailing ' #' occurrences
		if i := strings.Index(s, " #"); i >= 0 {
			s = strings.TrimSpace(s[:i])
			if s == "" {
				continue
			}
		}
		if !filepath.IsAbs(s) {
			continue
		}
		if rp, err := filepath.EvalSymlinks(s); err == nil {
			s = rp
		}
		m[s] = struct{}{}
	}
	return m
}

// terminateProcessGroup sends SIGTERM, then SIGKILL once the grace period
// lapses, and returns the Wait result.
func (d *ExecDriver) terminateProcessGroup(pid int, done <-chan error) error {
	// Negative PID targets the process group.
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	grace := time.NewTimer(d.cfg.TerminationGrace)
	defer grace.Stop()
	select {
	case err := <-done:
		return err
	case <-grace.C:
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	return <-done
}

// Metrics exposes a snapshot of internal counters.
type Metrics struct {
	Active  int64
	Success uint64
	Failure uint64
}

func (d *ExecDriver) Metrics() Metrics {
	return Metrics{
		Active:  atomic.LoadInt64(&d.mActive),
		Success: atomic.LoadUint64(&d.mSuccess),
		Failure: atomic.LoadUint64(&d.mFailure),
	}
}
