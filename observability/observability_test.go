package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("hidden")
	log.Warn("scenario: failed", "actor", "host")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["actor"] != "host" || rec["msg"] != "scenario: failed" {
		t.Errorf("record: got %v", rec)
	}

	buf.Reset()
	log, err = NewLogger(&buf, "", "text")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text format: got %q", buf.String())
	}

	if _, err := NewLogger(&buf, "verbose", "json"); err == nil {
		t.Error("unknown level must fail")
	}
	if _, err := NewLogger(&buf, "info", "xml"); err == nil {
		t.Error("unknown format must fail")
	}
}

func TestMetrics(t *testing.T) {
	before := testutil.ToFloat64(metricDiffs.WithLabelValues("changed"))
	RecordDiff("changed")
	RecordDiff("changed")
	if got := testutil.ToFloat64(metricDiffs.WithLabelValues("changed")) - before; got != 2 {
		t.Errorf("diff_results_total{changed}: got +%v, want +2", got)
	}

	RecordScenario("normal-game", false, 12)
	if got := testutil.ToFloat64(metricScenarios.WithLabelValues("normal-game", "failed")); got < 1 {
		t.Errorf("scenarios_total: got %v", got)
	}

	n, err := testutil.GatherAndCount(Registry, "wat_diff_results_total")
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("wat_diff_results_total not exported")
	}
}

func TestSetupTracing(t *testing.T) {
	shutdown, err := SetupTracing(t.Context(), "wat-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	shutdown, err = SetupTracing(t.Context(), "wat-test", &buf)
	if err != nil {
		t.Fatal(err)
	}
	_, span := StartSpan(t.Context(), "scenario", AttrScenario.String("normal-game"))
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "normal-game") {
		t.Errorf("span not exported: %q", buf.String())
	}
}
