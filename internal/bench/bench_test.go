package bench_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/go-tts-harness/internal/bench"
)

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

func TestStats_MinMaxMean(t *testing.T) {
	durations := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}
	s := bench.ComputeStats(durations)

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}

	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}

	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}
}

func TestStats_Empty(t *testing.T) {
	if s := bench.ComputeStats(nil); s != (bench.Stats{}) {
		t.Errorf("want zero stats, got %+v", s)
	}
}

func TestSummarize(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 30 * time.Millisecond, Verified: true},
		{Index: 1, Duration: 10 * time.Millisecond, Verified: false},
		{Index: 2, Duration: 20 * time.Millisecond, Verified: true},
		{Index: 3, Duration: 20 * time.Millisecond, Verified: true},
	}
	s := bench.Summarize(runs)

	if s.Runs != 4 || s.Failures != 1 {
		t.Fatalf("want 4 runs/1 failure, got %d/%d", s.Runs, s.Failures)
	}

	if s.SuccessRate() != 75 {
		t.Errorf("want success rate 75, got %v", s.SuccessRate())
	}

	if s.AvgMillis() != 20 {
		t.Errorf("want avg 20ms, got %v", s.AvgMillis())
	}
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func TestFormatSummary(t *testing.T) {
	var buf strings.Builder
	bench.FormatSummary(bench.Summarize([]bench.RunResult{
		{Duration: 1500 * time.Microsecond, Verified: true},
	}), &buf)

	want := "[SUMMARY]:\ntext to speech correct rate: 100 %\navg_time:1.5ms/sequence\n"
	if buf.String() != want {
		t.Errorf("unexpected summary:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestFormatTable_ContainsHeaders(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 800 * time.Millisecond, Sum: -11987.2, Verified: true},
		{Index: 1, Duration: 500 * time.Millisecond, Sum: -11986, Verified: false},
	}

	var buf strings.Builder
	bench.FormatTable(runs, bench.Summarize(runs), &buf)
	out := strings.ToLower(buf.String())

	for _, want := range []string{"run", "cold", "ms", "sum", "verified", "-11987.200000", "false", "[summary]"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON_IsValidJSON(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 800 * time.Millisecond, Sum: 6921, Verified: true},
	}

	var buf bytes.Buffer
	if err := bench.FormatJSON(runs, bench.Summarize(runs), &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var out struct {
		Runs []struct {
			DurationMS float64 `json:"duration_ms"`
			Verified   bool    `json:"verified"`
		} `json:"runs"`
		Stats struct {
			SuccessRate float64 `json:"success_rate"`
		} `json:"stats"`
	}

	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v\n%s", err, buf.String())
	}

	if len(out.Runs) != 1 || out.Runs[0].DurationMS != 800 || !out.Runs[0].Verified {
		t.Errorf("unexpected runs: %+v", out.Runs)
	}

	if out.Stats.SuccessRate != 100 {
		t.Errorf("want success rate 100, got %v", out.Stats.SuccessRate)
	}
}

func TestFormatYAML_IsValidYAML(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 2 * time.Millisecond, Verified: false},
	}

	var buf bytes.Buffer
	if err := bench.Write(&buf, "yaml", runs); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("FormatYAML produced invalid YAML: %v\n%s", err, buf.String())
	}

	stats, ok := out["stats"].(map[string]any)
	if !ok {
		t.Fatalf("missing stats section:\n%s", buf.String())
	}

	if stats["failures"] != 1 {
		t.Errorf("want 1 failure, got %v", stats["failures"])
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := bench.Write(&bytes.Buffer{}, "csv", nil)
	if err == nil || !strings.Contains(err.Error(), "csv") {
		t.Fatalf("want unknown format error, got %v", err)
	}
}
