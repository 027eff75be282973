package tensor

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestInferTypeAndFormat(t *testing.T) {
	tests := []struct {
		name       string
		def        DataType
		wantType   DataType
		wantFormat DataFormat
	}{
		{name: "tts_words", def: F16, wantType: U32, wantFormat: Normal},
		{name: "tts_alignments", def: F16, wantType: F16, wantFormat: Normal},
		{name: "tts_alignments", def: F32, wantType: F32, wantFormat: Normal},
		{name: "decoder_hidden", def: F32, wantType: F32, wantFormat: NCHW},
		{name: "TTS_WORDS", def: F32, wantType: F32, wantFormat: NCHW},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.def.String(), func(t *testing.T) {
			dt, df := InferTypeAndFormat(tt.name, tt.def)
			if dt != tt.wantType || df != tt.wantFormat {
				t.Fatalf("got %s/%s, want %s/%s", dt, df, tt.wantType, tt.wantFormat)
			}
		})
	}
}

func TestDescShapeIsReversedDims(t *testing.T) {
	d := NewDesc(F32, NCHW, 1, 80, 200)

	if !reflect.DeepEqual(d.Dims, []uint32{200, 80, 1}) {
		t.Fatalf("unexpected dims: %v", d.Dims)
	}

	if !reflect.DeepEqual(d.Shape(), []uint32{1, 80, 200}) {
		t.Fatalf("unexpected shape: %v", d.Shape())
	}

	if d.NumElements() != 16000 {
		t.Fatalf("expected 16000 elements, got %d", d.NumElements())
	}
}

func TestDescZeroDims(t *testing.T) {
	d := NewDesc(F32, NCHW)
	if d.NumDims() != 0 {
		t.Fatalf("expected 0 dims, got %d", d.NumDims())
	}

	if d.NumElements() != 1 {
		t.Fatalf("expected scalar to hold 1 element, got %d", d.NumElements())
	}
}

func TestDescCheckedNumElements(t *testing.T) {
	if n, ok := NewDesc(F32, NCHW, 1, 80, 200).CheckedNumElements(); !ok || n != 16000 {
		t.Fatalf("got %d/%v, want 16000/true", n, ok)
	}

	if _, ok := NewDesc(F32, NCHW, 4294967295, 4294967295, 4294967295).CheckedNumElements(); ok {
		t.Fatal("expected overflow to be reported")
	}

	if n, ok := NewDesc(F32, NCHW, 4294967295, 0, 4294967295).CheckedNumElements(); !ok || n != 0 {
		t.Fatalf("got %d/%v, want 0/true", n, ok)
	}
}

func TestNewMaterializesType(t *testing.T) {
	t.Run("f32", func(t *testing.T) {
		tt, err := New(NewDesc(F32, NCHW, 3), []float64{1.5, -2, 0.25})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		if !reflect.DeepEqual(tt.Float32s(), []float32{1.5, -2, 0.25}) {
			t.Fatalf("unexpected data: %v", tt.Float32s())
		}
	})

	t.Run("f16 rounds", func(t *testing.T) {
		tt, err := New(NewDesc(F16, NCHW, 2), []float64{0.1, 2048})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		// 0.1 is not representable in half precision.
		if got := tt.Element(0); got == 0.1 || got < 0.0999 || got > 0.1001 {
			t.Fatalf("expected half precision rounding of 0.1, got %v", got)
		}

		if got := tt.Element(1); got != 2048 {
			t.Fatalf("expected 2048, got %v", got)
		}
	})

	t.Run("u32 truncates", func(t *testing.T) {
		tt, err := New(NewDesc(U32, Normal, 3), []float64{7, 12.9, 0})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		if !reflect.DeepEqual(tt.Int64s(), []int64{7, 12, 0}) {
			t.Fatalf("unexpected data: %v", tt.Int64s())
		}
	})
}

func TestNewErrors(t *testing.T) {
	_, err := New(NewDesc(F32, NCHW, 2, 2), []float64{1, 2, 3})
	if !errors.Is(err, errElementCount) {
		t.Fatalf("expected element count error, got %v", err)
	}

	_, err = New(NewDesc(U32, Normal, 1), []float64{-1})
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestDescIsCopied(t *testing.T) {
	d := NewDesc(F32, NCHW, 2)
	tt, err := FromFloat32(d, []float32{1, 2})
	if err != nil {
		t.Fatalf("FromFloat32: %v", err)
	}

	d.Dims[0] = 9
	got := tt.Desc()
	got.Dims[0] = 5

	if tt.Desc().Dims[0] != 2 {
		t.Fatalf("descriptor mutated through alias: %v", tt.Desc())
	}
}
