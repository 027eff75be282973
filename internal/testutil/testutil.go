// Package testutil provides fixture writers and skip helpers shared by tests.
//
// The Require helpers call t.Skip with a readable reason when a prerequisite
// is absent, so integration tests stay runnable in partial environments.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-tts-harness/internal/states"
	"github.com/example/go-tts-harness/internal/tensor"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks ORT_LIBRARY_PATH, then TTSHARNESS_ORT_LIB, then common
// system library paths.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "TTSHARNESS_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or TTSHARNESS_ORT_LIB")
}

// RequireEnvFile skips the test unless env names an existing file, and
// returns that path.
func RequireEnvFile(tb testing.TB, env string) string {
	tb.Helper()

	p := os.Getenv(env)
	if p == "" {
		tb.Skipf("%s not set", env)
	}
	if _, err := os.Stat(p); err != nil {
		tb.Skipf("%s=%q: %v", env, p, err)
	}
	return p
}

// Fixture is one tensor written by WriteStates.
type Fixture struct {
	Name   string
	Shape  []uint32
	Values []float64
}

// WriteStates writes a manifest named manifestName plus one data file per
// fixture into dir, in the format read by states.PrepareStates.
func WriteStates(tb testing.TB, dir, manifestName string, fixtures ...Fixture) {
	tb.Helper()

	entries := make([]states.Entry, 0, len(fixtures))
	for _, f := range fixtures {
		dt, df := tensor.InferTypeAndFormat(f.Name, tensor.F32)
		desc := tensor.NewDesc(dt, df, f.Shape...)
		entries = append(entries, states.Entry{Name: f.Name, Desc: desc})

		t, err := tensor.New(desc, f.Values)
		if err != nil {
			tb.Fatalf("fixture %q: %v", f.Name, err)
		}
		if err := states.SaveTensorData(states.DataPath(dir, f.Name), t); err != nil {
			tb.Fatalf("fixture %q: %v", f.Name, err)
		}
	}

	mf, err := os.Create(filepath.Join(dir, manifestName))
	if err != nil {
		tb.Fatalf("create manifest: %v", err)
	}
	defer mf.Close()

	if err := states.WriteManifest(mf, entries); err != nil {
		tb.Fatalf("write manifest: %v", err)
	}
}

// WriteNameList writes names one per line to dir/fileName.
func WriteNameList(tb testing.TB, dir, fileName string, names ...string) {
	tb.Helper()

	content := strings.Join(names, "\n")
	if len(names) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0o600); err != nil {
		tb.Fatalf("write %s: %v", fileName, err)
	}
}
