package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-tts-harness/internal/tensor"
)

func TestParseAffinityPolicy(t *testing.T) {
	tests := []struct {
		name   string
		want   AffinityPolicy
		wantOK bool
	}{
		{name: "CPU_AFFINITY_HIGH_PERFORMANCE", want: HighPerformance, wantOK: true},
		{name: "cpu_affinity_low_power", want: LowPower, wantOK: true},
		{name: " GPU ", want: GPU, wantOK: true},
		{name: "turbo", want: HighPerformance, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAffinityPolicy(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestGraphPathFor(t *testing.T) {
	assert.Equal(t, "models/postnet_f16.onnx", GraphPathFor("models/postnet_f16.bolt"))
	assert.Equal(t, "models/vocoder.onnx", GraphPathFor("models/vocoder.onnx"))
}

func TestNewRejectsGPU(t *testing.T) {
	_, err := New(Options{Affinity: GPU, ModelPath: "m_f32.bolt"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestNewONNXMissingGraph(t *testing.T) {
	_, err := NewONNX(Options{ModelPath: filepath.Join(t.TempDir(), "encoder_f32.bolt")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDetectRuntime(t *testing.T) {
	t.Setenv("ORT_VERSION", "")

	dir := t.TempDir()
	lib := filepath.Join(dir, "libonnxruntime.so.1.20.1")
	require.NoError(t, os.WriteFile(lib, nil, 0o600))

	info, err := DetectRuntime(lib, "")
	require.NoError(t, err)
	assert.Equal(t, lib, info.LibraryPath)
	assert.Equal(t, "1.20.1", info.Version)

	t.Setenv("TTSHARNESS_ORT_LIB", lib)
	info, err = DetectRuntime("", "1.19.0")
	require.NoError(t, err)
	assert.Equal(t, lib, info.LibraryPath)
	assert.Equal(t, "1.19.0", info.Version)

	_, err = DetectRuntime(filepath.Join(dir, "missing.so"), "")
	require.Error(t, err)
}

func TestRereadyGatesInputBinding(t *testing.T) {
	p := &ONNX{graph: "test.onnx"}
	desc := tensor.NewDesc(tensor.F32, tensor.NCHW, 1, 4)
	in, err := tensor.FromFloat32(desc, []float32{1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, p.Reready(map[string]tensor.Desc{"x": desc}))
	require.NoError(t, p.CopyToNamedInput("x", in))

	err = p.CopyToNamedInput("y", in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not announced")

	require.NoError(t, p.Reready(map[string]tensor.Desc{"x": tensor.NewDesc(tensor.F32, tensor.NCHW, 2, 2)}))
	err = p.CopyToNamedInput("x", in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "differs from readied")

	got, err := p.TensorByName("x")
	require.Error(t, err, "reready must drop tensors of the previous run, got %v", got)
}

func TestDescFromShape(t *testing.T) {
	d, err := descFromShape(tensor.F32, []int64{1, 80, 200})
	require.NoError(t, err)
	assert.Equal(t, []uint32{200, 80, 1}, d.Dims)
	assert.Equal(t, tensor.NCHW, d.Format)

	_, err = descFromShape(tensor.F32, []int64{1, -1})
	require.Error(t, err)
}
