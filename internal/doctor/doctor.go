// Package doctor provides preflight checks for a harness invocation.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// RuntimeVersion returns the detected ONNX Runtime version ("1.23.0").
	RuntimeVersion VersionFunc
	// MinAPIVersion is the ORT C API version the pipeline is built against.
	// ONNX Runtime 1.N serves API versions up to N.
	MinAPIVersion int
	// GraphPath is the ONNX graph the pipeline will load.
	GraphPath string
	// Manifests are shape manifests that must exist and parse.
	Manifests []string
	// ParseManifest validates one manifest and reports how many records it holds.
	ParseManifest func(path string) (int, error)
	// Files are other state files that must exist.
	Files []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- onnx runtime -----------------------------------------------------
	if cfg.RuntimeVersion != nil {
		ver, err := cfg.RuntimeVersion()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		case ver == "" || ver == "unknown":
			fmt.Fprintf(w, "%s onnx runtime: version unknown\n", PassMark)
		default:
			if vErr := checkRuntimeVersion(ver, cfg.MinAPIVersion); vErr != nil {
				res.fail(fmt.Sprintf("onnx runtime: %v", vErr))
				fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, ver, vErr)
			} else {
				fmt.Fprintf(w, "%s onnx runtime: %s\n", PassMark, ver)
			}
		}
	}

	// ---- onnx graph -------------------------------------------------------
	if cfg.GraphPath != "" {
		if _, err := os.Stat(cfg.GraphPath); err != nil {
			res.fail(fmt.Sprintf("onnx graph %q: %v", cfg.GraphPath, err))
			fmt.Fprintf(w, "%s onnx graph %s: not found\n", FailMark, cfg.GraphPath)
		} else {
			fmt.Fprintf(w, "%s onnx graph: %s\n", PassMark, cfg.GraphPath)
		}
	}

	// ---- state files ------------------------------------------------------
	for _, path := range cfg.Manifests {
		if cfg.ParseManifest == nil {
			break
		}
		n, err := cfg.ParseManifest(path)
		if err != nil {
			res.fail(fmt.Sprintf("manifest %q: %v", path, err))
			fmt.Fprintf(w, "%s manifest %s: %v\n", FailMark, path, err)
		} else {
			fmt.Fprintf(w, "%s manifest: %s (%d tensors)\n", PassMark, path, n)
		}
	}

	for _, path := range cfg.Files {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("state file %q: %v", path, err))
			fmt.Fprintf(w, "%s state file %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s state file: %s\n", PassMark, path)
		}
	}

	return res
}

// checkRuntimeVersion returns an error unless ver is a 1.x release that
// serves C API version minAPI.
func checkRuntimeVersion(ver string, minAPI int) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 1 {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %d", major)
	}
	if minor < minAPI {
		return fmt.Errorf("requires ONNX Runtime >=1.%d for API version %d, got 1.%d", minAPI, minAPI, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
