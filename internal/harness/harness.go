package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/example/go-tts-harness/internal/audio"
	"github.com/example/go-tts-harness/internal/bench"
	"github.com/example/go-tts-harness/internal/pipeline"
	"github.com/example/go-tts-harness/internal/states"
	"github.com/example/go-tts-harness/internal/tensor"
)

// Default state file names inside the sequences directory.
const (
	DefaultInputManifest  = "input_shape.txt"
	DefaultOutputNames    = "output_name.txt"
	DefaultOutputManifest = "output_shape.txt"
)

// Options configures a harness run.
type Options struct {
	Kind      Kind
	Precision tensor.DataType
	Dir       string

	InputManifest  string
	OutputNames    string
	OutputManifest string
	Iterations     int

	// WAVPath, when set, receives the vocoder output as a WAV file.
	WAVPath       string
	WAVSampleRate int

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.InputManifest == "" {
		o.InputManifest = DefaultInputManifest
	}
	if o.OutputNames == "" {
		o.OutputNames = DefaultOutputNames
	}
	if o.OutputManifest == "" {
		o.OutputManifest = DefaultOutputManifest
	}
	if o.Iterations == 0 {
		o.Iterations = 1
	}
	if o.WAVSampleRate == 0 {
		o.WAVSampleRate = audio.DefaultSampleRate
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Configure resolves the sub-network and the model precision.
func Configure(modelPath, subNetwork string) (Kind, tensor.DataType, error) {
	kind, err := ParseKind(subNetwork)
	if err != nil {
		return 0, 0, err
	}
	dt, err := PrecisionFromModelPath(modelPath)
	if err != nil {
		return 0, 0, err
	}
	return kind, dt, nil
}

// Sum returns the sum of all elements of t.
func Sum(t *tensor.Tensor) float64 {
	return floats.Sum(t.Float64s())
}

// Verify sums t and checks the sum against sig.
func Verify(t *tensor.Tensor, sig Signature) (float64, bool) {
	sum := Sum(t)
	return sum, sig.Matches(sum)
}

// Run executes opts.Iterations iterations of load, bind, execute, verify
// and persist against p. The results of every completed iteration are
// returned. If any iteration fails verification, the error wraps
// ErrVerification.
func Run(ctx context.Context, p pipeline.Pipeline, opts Options) ([]bench.RunResult, error) {
	opts = opts.withDefaults()
	if opts.Iterations < 1 {
		return nil, fmt.Errorf("%w: iterations must be at least 1, got %d", ErrConfig, opts.Iterations)
	}
	if !opts.Kind.valid() {
		return nil, fmt.Errorf("%w: sub network %s", ErrConfig, opts.Kind)
	}

	results := make([]bench.RunResult, 0, opts.Iterations)
	for i := range opts.Iterations {
		r, err := iterate(ctx, p, opts, i)
		if err != nil {
			return results, fmt.Errorf("iteration %d: %w", i+1, err)
		}
		results = append(results, r)
	}

	if s := bench.Summarize(results); s.Failures > 0 {
		return results, fmt.Errorf("%w: %d of %d iterations missed the %s signature",
			ErrVerification, s.Failures, s.Runs, opts.Kind)
	}
	return results, nil
}

func iterate(ctx context.Context, p pipeline.Pipeline, opts Options, i int) (bench.RunResult, error) {
	log := opts.Logger.With(slog.Int("iteration", i+1))

	input, err := states.PrepareStates(opts.Precision, opts.Dir, opts.InputManifest)
	if err != nil {
		return bench.RunResult{}, fmt.Errorf("load input: %w", err)
	}
	log.Debug("input loaded", slog.Int("tensors", len(input)))

	if err := p.Reready(input.Descs()); err != nil {
		return bench.RunResult{}, fmt.Errorf("reready: %w", err)
	}
	for name, t := range input {
		if err := p.CopyToNamedInput(name, t); err != nil {
			return bench.RunResult{}, fmt.Errorf("bind %q: %w", name, err)
		}
	}

	start := time.Now()
	if err := p.Run(ctx); err != nil {
		return bench.RunResult{}, fmt.Errorf("run: %w", err)
	}
	elapsed := time.Since(start)

	outputs := opts.Kind.Outputs()
	collected := make([]*tensor.Tensor, len(outputs))
	for j, name := range outputs {
		t, err := p.TensorByName(name)
		if err != nil {
			return bench.RunResult{}, fmt.Errorf("collect output %q: %w", name, err)
		}
		collected[j] = t
	}

	sig := opts.Kind.Signature()
	sum, ok := Verify(collected[0], sig)
	log.Info("pipeline run",
		slog.String("sub_network", opts.Kind.String()),
		slog.Float64("elapsed_ms", float64(elapsed)/float64(time.Millisecond)),
		slog.String("output", outputs[0]),
		slog.Float64("sum", sum),
		slog.Float64("expected_sum", sig.ExpectedSum),
		slog.Bool("verified", ok),
	)

	if opts.WAVPath != "" && opts.Kind == MelGANVocoder {
		if err := audio.WriteWAVFile(opts.WAVPath, collected[0].Float32s(), opts.WAVSampleRate); err != nil {
			return bench.RunResult{}, fmt.Errorf("export %q: %w", outputs[0], err)
		}
		log.Debug("waveform written", slog.String("path", opts.WAVPath))
	}

	if err := states.SaveStates(p, opts.Dir, opts.OutputNames, opts.OutputManifest); err != nil {
		return bench.RunResult{}, fmt.Errorf("save output: %w", err)
	}

	return bench.RunResult{
		Index:    i,
		Cold:     i == 0,
		Duration: elapsed,
		Sum:      sum,
		Verified: ok,
	}, nil
}
