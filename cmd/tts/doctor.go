package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-tts-harness/internal/doctor"
	"github.com/example/go-tts-harness/internal/harness"
	"github.com/example/go-tts-harness/internal/pipeline"
	"github.com/example/go-tts-harness/internal/states"
)

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor <modelPath> <sequencesDirectory>",
		Short: "Check the runtime, model graph and state files before a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.logCloser.Close()

			modelPath, dir := args[0], args[1]
			cfg := a.cfg

			precision, err := harness.PrecisionFromModelPath(modelPath)
			if err != nil {
				return err
			}

			graph := cfg.Runtime.ONNXModelPath
			if graph == "" {
				graph = pipeline.GraphPathFor(modelPath)
			}

			inputManifest := filepath.Join(dir, cfg.Harness.InputManifest)
			files := []string{filepath.Join(dir, cfg.Harness.OutputNames)}
			if m, err := states.ParseManifest(inputManifest, precision); err == nil {
				for _, e := range m.Entries {
					files = append(files, states.DataPath(dir, e.Name))
				}
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "model: %s (%s)\n", modelPath, precision)

			result := doctor.Run(doctor.Config{
				RuntimeVersion: func() (string, error) {
					info, err := pipeline.DetectRuntime(cfg.Runtime.ORTLibraryPath, cfg.Runtime.ORTVersion)
					return info.Version, err
				},
				MinAPIVersion: cfg.Runtime.APIVersion,
				GraphPath:     graph,
				Manifests:     []string{inputManifest},
				ParseManifest: func(path string) (int, error) {
					m, err := states.ParseManifest(path, precision)
					if err != nil {
						return 0, err
					}
					return len(m.Entries), nil
				},
				Files: files,
			}, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}
