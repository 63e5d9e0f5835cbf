package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("POST", "/mcp", 200, 12*time.Millisecond)

	var rec driver.Recorder = NewToolRecorder()
	before := testutil.ToFloat64(toolInvocations.WithLabelValues("alive6", driver.OutcomeSuccess))
	rec.ExecStarted("alive6")
	if got := testutil.ToFloat64(toolInflight.WithLabelValues("alive6")); got != 1 {
		t.Fatalf("inflight = %v, want 1", got)
	}
	rec.ExecFinished("alive6", driver.OutcomeSuccess, 40*time.Millisecond)
	if got := testutil.ToFloat64(toolInflight.WithLabelValues("alive6")); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(toolInvocations.WithLabelValues("alive6", driver.OutcomeSuccess)); got != before+1 {
		t.Fatalf("invocations = %v, want %v", got, before+1)
	}
}

func TestInitLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("thc6gw-test", LogOptions{Level: "warn", JSON: true, Out: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked at warn level: %s", out)
	}
	if !strings.Contains(out, `"app":"thc6gw-test"`) || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
