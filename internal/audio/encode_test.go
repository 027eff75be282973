package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-tts-harness/internal/testutil"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.25, 2, -3}

	data, err := EncodeWAV(samples, DefaultSampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	got, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if rate != DefaultSampleRate {
		t.Fatalf("expected sample rate %d, got %d", DefaultSampleRate, rate)
	}

	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}

	want := []float32{0, 0.5, -0.5, 0.25, 1, -1}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-3 {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEncodeWAVInvalidRate(t *testing.T) {
	if _, err := EncodeWAV([]float32{0}, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestWriteWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := WriteWAVFile(path, make([]float32, 100), 16000); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if n := testutil.AssertValidWAV(t, data, 16000); n != 100 {
		t.Fatalf("expected 100 samples, got %d", n)
	}
}

func TestDecodeWAVEmpty(t *testing.T) {
	if _, _, err := DecodeWAV(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
