// Package bench aggregates and reports per-iteration harness results.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and verification outcome of one iteration.
type RunResult struct {
	Index    int
	Cold     bool // true for the first iteration
	Duration time.Duration
	Sum      float64
	Verified bool
}

// ElapsedMillis returns the pipeline run time in fractional milliseconds.
func (r RunResult) ElapsedMillis() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summary is the aggregate over all iterations of one invocation.
type Summary struct {
	Runs     int
	Failures int
	Stats    Stats
}

// Summarize computes the summary of runs.
func Summarize(runs []RunResult) Summary {
	durations := make([]time.Duration, len(runs))
	s := Summary{Runs: len(runs)}
	for i, r := range runs {
		durations[i] = r.Duration
		if !r.Verified {
			s.Failures++
		}
	}
	s.Stats = ComputeStats(durations)
	return s
}

// SuccessRate returns the percentage of verified runs.
func (s Summary) SuccessRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return 100.0 * float64(s.Runs-s.Failures) / float64(s.Runs)
}

// AvgMillis returns the mean run time in milliseconds.
func (s Summary) AvgMillis() float64 {
	return float64(s.Stats.Mean) / float64(time.Millisecond)
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// Formats lists the accepted report formats.
var Formats = []string{"text", "table", "json", "yaml"}

// Write renders runs in the named format.
func Write(w io.Writer, format string, runs []RunResult) error {
	s := Summarize(runs)
	switch format {
	case "", "text":
		FormatSummary(s, w)
	case "table":
		FormatTable(runs, s, w)
	case "json":
		return FormatJSON(runs, s, w)
	case "yaml":
		return FormatYAML(runs, s, w)
	default:
		return fmt.Errorf("unknown report format %q (want text|table|json|yaml)", format)
	}
	return nil
}

// FormatSummary writes the success rate and average latency lines.
func FormatSummary(s Summary, w io.Writer) {
	fmt.Fprintln(w, "[SUMMARY]:")
	fmt.Fprintf(w, "text to speech correct rate: %g %%\n", s.SuccessRate())
	fmt.Fprintf(w, "avg_time:%gms/sequence\n", s.AvgMillis())
}

// FormatTable writes one row per run followed by the summary lines.
func FormatTable(runs []RunResult, s Summary, w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Cold", "MS", "Sum", "Verified"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		table.Append([]string{
			strconv.Itoa(r.Index + 1),
			cold,
			strconv.FormatFloat(r.ElapsedMillis(), 'f', 3, 64),
			strconv.FormatFloat(r.Sum, 'f', 6, 64),
			strconv.FormatBool(r.Verified),
		})
	}
	table.Render()

	FormatSummary(s, w)
}

type report struct {
	Runs  []reportRun `json:"runs" yaml:"runs"`
	Stats reportStats `json:"stats" yaml:"stats"`
}

type reportRun struct {
	Index      int     `json:"index" yaml:"index"`
	Cold       bool    `json:"cold" yaml:"cold"`
	DurationMS float64 `json:"duration_ms" yaml:"duration_ms"`
	Sum        float64 `json:"sum" yaml:"sum"`
	Verified   bool    `json:"verified" yaml:"verified"`
}

type reportStats struct {
	MinMS       float64 `json:"min_ms" yaml:"min_ms"`
	MeanMS      float64 `json:"mean_ms" yaml:"mean_ms"`
	MaxMS       float64 `json:"max_ms" yaml:"max_ms"`
	Failures    int     `json:"failures" yaml:"failures"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}

func newReport(runs []RunResult, s Summary) report {
	r := report{
		Runs: make([]reportRun, len(runs)),
		Stats: reportStats{
			MinMS:       float64(s.Stats.Min) / float64(time.Millisecond),
			MeanMS:      s.AvgMillis(),
			MaxMS:       float64(s.Stats.Max) / float64(time.Millisecond),
			Failures:    s.Failures,
			SuccessRate: s.SuccessRate(),
		},
	}
	for i, run := range runs {
		r.Runs[i] = reportRun{
			Index:      run.Index,
			Cold:       run.Cold,
			DurationMS: run.ElapsedMillis(),
			Sum:        run.Sum,
			Verified:   run.Verified,
		}
	}
	return r
}

// FormatJSON writes a JSON report of runs to w.
func FormatJSON(runs []RunResult, s Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newReport(runs, s))
}

// FormatYAML writes a YAML report of runs to w.
func FormatYAML(runs []RunResult, s Summary, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newReport(runs, s)); err != nil {
		return err
	}
	return enc.Close()
}
