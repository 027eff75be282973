// Package pipeline defines the inference pipeline driven by the harness and
// provides an ONNX Runtime backed implementation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/go-tts-harness/internal/tensor"
)

// Pipeline is a pre-built inference graph that accepts named inputs and
// exposes named tensors after a run.
//
// Reready must be called with every input shape before CopyToNamedInput,
// because shapes may change from one run to the next.
type Pipeline interface {
	Reready(shapes map[string]tensor.Desc) error
	CopyToNamedInput(name string, t *tensor.Tensor) error
	Run(ctx context.Context) error
	TensorByName(name string) (*tensor.Tensor, error)
	Close()
}

// ErrUnsupported marks a device or policy the backend cannot serve.
var ErrUnsupported = errors.New("unsupported pipeline option")

// AffinityPolicy selects how pipeline work is scheduled onto cores.
type AffinityPolicy int

const (
	HighPerformance AffinityPolicy = iota
	LowPower
	GPU
)

var affinityNames = map[string]AffinityPolicy{
	"CPU_AFFINITY_HIGH_PERFORMANCE": HighPerformance,
	"CPU_AFFINITY_LOW_POWER":        LowPower,
	"GPU":                           GPU,
}

func (p AffinityPolicy) String() string {
	for name, v := range affinityNames {
		if v == p {
			return name
		}
	}
	return fmt.Sprintf("AffinityPolicy(%d)", int(p))
}

// ParseAffinityPolicy resolves a policy name. Unknown names fall back to
// HighPerformance and report ok=false.
func ParseAffinityPolicy(name string) (AffinityPolicy, bool) {
	p, ok := affinityNames[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return HighPerformance, false
	}
	return p, true
}

// Device is the hardware a pipeline executes on.
type Device int

const (
	CPU Device = iota
)

func (d Device) String() string {
	if d == CPU {
		return "CPU"
	}
	return fmt.Sprintf("Device(%d)", int(d))
}

// Options configures pipeline construction.
type Options struct {
	Affinity  AffinityPolicy
	ModelPath string
	Device    Device

	// GraphPath overrides the ONNX graph derived from ModelPath.
	GraphPath   string
	LibraryPath string
	ORTVersion  string
	APIVersion  uint32
	Logger      *slog.Logger
}

// GraphPathFor returns the ONNX export that accompanies a .bolt model file.
func GraphPathFor(modelPath string) string {
	if strings.HasSuffix(modelPath, ".onnx") {
		return modelPath
	}
	return strings.TrimSuffix(modelPath, ".bolt") + ".onnx"
}

// New constructs the pipeline for opts.
func New(opts Options) (Pipeline, error) {
	if opts.Device != CPU {
		return nil, fmt.Errorf("%w: device %s", ErrUnsupported, opts.Device)
	}
	if opts.Affinity == GPU {
		return nil, fmt.Errorf("%w: affinity policy %s on device %s", ErrUnsupported, opts.Affinity, opts.Device)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return NewONNX(opts)
}
