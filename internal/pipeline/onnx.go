package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/example/go-tts-harness/internal/tensor"
)

const defaultAPIVersion = 23

// ONNX runs a single ONNX graph through ONNX Runtime.
type ONNX struct {
	graph   string
	log     *slog.Logger
	runtime *ort.Runtime
	env     *ort.Env
	session *ort.Session

	shapes  map[string]tensor.Desc
	inputs  map[string]*tensor.Tensor
	outputs map[string]*tensor.Tensor
}

// NewONNX opens the graph for opts.ModelPath in a new ORT session.
func NewONNX(opts Options) (*ONNX, error) {
	graph := opts.GraphPath
	if graph == "" {
		graph = GraphPathFor(opts.ModelPath)
	}
	if _, err := os.Stat(graph); err != nil {
		return nil, fmt.Errorf("onnx graph for %s: %w", opts.ModelPath, err)
	}

	info, err := DetectRuntime(opts.LibraryPath, opts.ORTVersion)
	if err != nil {
		return nil, err
	}

	apiVersion := opts.APIVersion
	if apiVersion == 0 {
		apiVersion = defaultAPIVersion
	}

	runtime, err := ort.NewRuntime(info.LibraryPath, apiVersion)
	if err != nil {
		return nil, fmt.Errorf("ort runtime: %w", err)
	}

	env, err := runtime.NewEnv("tts-harness", ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		return nil, fmt.Errorf("ort env: %w", err)
	}

	session, err := runtime.NewSession(env, graph, nil)
	if err != nil {
		env.Close()
		_ = runtime.Close()

		return nil, fmt.Errorf("ort session (%s): %w", graph, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("pipeline ready",
		slog.String("graph", graph),
		slog.String("ort_library", info.LibraryPath),
		slog.String("ort_version", info.Version),
		slog.String("affinity", opts.Affinity.String()),
		slog.String("device", opts.Device.String()),
	)

	return &ONNX{
		graph:   graph,
		log:     logger,
		runtime: runtime,
		env:     env,
		session: session,
	}, nil
}

// Reready records the input shapes of the next run and drops the tensors of
// the previous one.
func (p *ONNX) Reready(shapes map[string]tensor.Desc) error {
	p.shapes = make(map[string]tensor.Desc, len(shapes))
	for name, d := range shapes {
		p.shapes[name] = d
	}
	p.inputs = make(map[string]*tensor.Tensor, len(shapes))
	p.outputs = nil
	return nil
}

// CopyToNamedInput binds t to the named graph input. The shape must match
// the one announced by Reready.
func (p *ONNX) CopyToNamedInput(name string, t *tensor.Tensor) error {
	want, ok := p.shapes[name]
	if !ok {
		return fmt.Errorf("input %q was not announced by reready", name)
	}
	if got := t.Desc(); !sameShape(want, got) {
		return fmt.Errorf("input %q: shape %v differs from readied %v", name, got.Shape(), want.Shape())
	}
	p.inputs[name] = t
	return nil
}

// Run executes the graph with the bound inputs.
func (p *ONNX) Run(ctx context.Context) error {
	if len(p.inputs) != len(p.shapes) {
		return fmt.Errorf("run %s: %d of %d inputs bound", p.graph, len(p.inputs), len(p.shapes))
	}

	ortInputs := make(map[string]*ort.Value, len(p.inputs))
	defer closeORTValues(ortInputs)
	for name, t := range p.inputs {
		v, err := tensorToORT(p.runtime, t)
		if err != nil {
			return fmt.Errorf("input %q: %w", name, err)
		}
		ortInputs[name] = v
	}

	ortOutputs, err := p.session.Run(ctx, ortInputs)
	if err != nil {
		return fmt.Errorf("run %s: %w", p.graph, err)
	}
	defer closeORTValues(ortOutputs)

	outputs := make(map[string]*tensor.Tensor, len(ortOutputs))
	for name, v := range ortOutputs {
		t, err := ortToTensor(v)
		if err != nil {
			return fmt.Errorf("output %q: %w", name, err)
		}
		outputs[name] = t
	}
	p.outputs = outputs
	return nil
}

// TensorByName returns a graph output of the last run, or a bound input.
func (p *ONNX) TensorByName(name string) (*tensor.Tensor, error) {
	if t, ok := p.outputs[name]; ok {
		return t, nil
	}
	if t, ok := p.inputs[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("tensor %q not found in %s", name, p.graph)
}

// Close releases all ORT resources. Safe to call multiple times.
func (p *ONNX) Close() {
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}

	if p.env != nil {
		p.env.Close()
		p.env = nil
	}

	if p.runtime != nil {
		_ = p.runtime.Close()
		p.runtime = nil
	}
}

func sameShape(a, b tensor.Desc) bool {
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] {
			return false
		}
	}
	return true
}

func ortShape(d tensor.Desc) []int64 {
	shape := d.Shape()
	out := make([]int64, len(shape))
	for i, v := range shape {
		out[i] = int64(v)
	}
	return out
}

func tensorToORT(runtime *ort.Runtime, t *tensor.Tensor) (*ort.Value, error) {
	desc := t.Desc()
	switch desc.Type {
	case tensor.F32, tensor.F16:
		return ort.NewTensorValue(runtime, t.Float32s(), ortShape(desc))
	case tensor.U32:
		return ort.NewTensorValue(runtime, t.Int64s(), ortShape(desc))
	default:
		return nil, fmt.Errorf("unsupported data type %s", desc.Type)
	}
}

func ortToTensor(v *ort.Value) (*tensor.Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("get element type: %w", err)
	}

	switch elemType {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}
		desc, err := descFromShape(tensor.F32, shape)
		if err != nil {
			return nil, err
		}
		return tensor.FromFloat32(desc, data)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}
		desc, err := descFromShape(tensor.U32, shape)
		if err != nil {
			return nil, err
		}
		u32 := make([]uint32, len(data))
		for i, x := range data {
			if x < 0 || x > math.MaxUint32 {
				return nil, fmt.Errorf("element %d value %d out of range for U32", i, x)
			}
			u32[i] = uint32(x)
		}
		return tensor.FromUint32(desc, u32)
	default:
		return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
	}
}

func descFromShape(dt tensor.DataType, shape []int64) (tensor.Desc, error) {
	if len(shape) > tensor.MaxDims {
		return tensor.Desc{}, fmt.Errorf("shape %v exceeds %d dimensions", shape, tensor.MaxDims)
	}
	dims := make([]uint32, len(shape))
	for i, v := range shape {
		if v < 0 || v > math.MaxUint32 {
			return tensor.Desc{}, fmt.Errorf("shape %v has invalid extent %d", shape, v)
		}
		dims[i] = uint32(v)
	}
	return tensor.NewDesc(dt, tensor.NCHW, dims...), nil
}

func closeORTValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
