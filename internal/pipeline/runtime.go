package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// RuntimeInfo describes the ONNX Runtime shared library in use.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

var libraryCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"C:/onnxruntime/lib/onnxruntime.dll",
}

// DetectRuntime locates the ONNX Runtime library: the explicit path first,
// then TTSHARNESS_ORT_LIB and ORT_LIBRARY_PATH, then common install locations.
func DetectRuntime(libraryPath, version string) (RuntimeInfo, error) {
	path := libraryPath
	for _, env := range []string{"TTSHARNESS_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if path != "" {
			break
		}
		path = os.Getenv(env)
	}

	if path == "" {
		for _, c := range libraryCandidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, errors.New("unable to detect ONNX Runtime library path")
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library path check failed: %w", err)
	}

	if version == "" {
		version = os.Getenv("ORT_VERSION")
	}
	if version == "" {
		version = inferVersionFromPath(path)
	}
	if version == "" {
		version = "unknown"
	}

	return RuntimeInfo{LibraryPath: path, Version: version}, nil
}

func inferVersionFromPath(path string) string {
	if m := versionPattern.FindStringSubmatch(filepath.Base(path)); len(m) == 2 {
		return m[1]
	}
	return ""
}
