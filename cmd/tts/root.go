package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/go-tts-harness/internal/bench"
	"github.com/example/go-tts-harness/internal/config"
	"github.com/example/go-tts-harness/internal/harness"
	"github.com/example/go-tts-harness/internal/logging"
	"github.com/example/go-tts-harness/internal/pipeline"
)

// pipelineFactory builds the pipeline for a run. Tests replace it.
var pipelineFactory = pipeline.New

// app holds the state PersistentPreRunE prepares for the commands.
type app struct {
	cfgFile   string
	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	a := &app{}

	cmd := &cobra.Command{
		Use:   "tts <modelPath> <sequencesDirectory> <" + strings.Join(harness.KindNames(), "|") + "> <cpuAffinityPolicyName>",
		Short: "Run a TTS sub-network against state files and verify its output",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 4 {
				return fmt.Errorf("expected at least 4 arguments, got %d\nusage: %s", len(args), cmd.UseLine())
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: a.cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			a.cfg = loaded

			l, closer, err := logging.New(loaded.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.logger = l.With(slog.String("run_id", uuid.NewString()))
			a.logCloser = closer
			slog.SetDefault(a.logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.logCloser.Close()
			return runHarness(cmd, a.cfg, a.logger, args)
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newDoctorCmd(a))

	return cmd
}

func runHarness(cmd *cobra.Command, cfg config.Config, logger *slog.Logger, args []string) error {
	modelPath, dir, subNetwork, policyName := args[0], args[1], args[2], args[3]
	if len(args) > 4 {
		logger.Debug("ignoring extra arguments", slog.Any("args", args[4:]))
	}

	kind, precision, err := harness.Configure(modelPath, subNetwork)
	if err != nil {
		return err
	}

	policy, ok := pipeline.ParseAffinityPolicy(policyName)
	if !ok {
		logger.Warn("unknown cpu affinity policy, using default",
			slog.String("policy", policyName),
			slog.String("default", policy.String()),
		)
	}

	logger.Info("harness start",
		slog.String("model", modelPath),
		slog.String("dir", dir),
		slog.String("sub_network", kind.String()),
		slog.String("precision", precision.String()),
		slog.String("affinity", policy.String()),
		slog.Int("iterations", cfg.Harness.Iterations),
	)

	p, err := pipelineFactory(pipeline.Options{
		Affinity:    policy,
		ModelPath:   modelPath,
		Device:      pipeline.CPU,
		GraphPath:   cfg.Runtime.ONNXModelPath,
		LibraryPath: cfg.Runtime.ORTLibraryPath,
		ORTVersion:  cfg.Runtime.ORTVersion,
		APIVersion:  uint32(cfg.Runtime.APIVersion),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("construct pipeline: %w", err)
	}
	defer p.Close()

	results, runErr := harness.Run(cmd.Context(), p, harness.Options{
		Kind:           kind,
		Precision:      precision,
		Dir:            dir,
		InputManifest:  cfg.Harness.InputManifest,
		OutputNames:    cfg.Harness.OutputNames,
		OutputManifest: cfg.Harness.OutputManifest,
		Iterations:     cfg.Harness.Iterations,
		WAVPath:        cfg.Harness.WAVPath,
		WAVSampleRate:  cfg.Harness.WAVSampleRate,
		Logger:         logger,
	})

	if len(results) > 0 {
		if err := bench.Write(cmd.OutOrStdout(), cfg.Harness.Format, results); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return runErr
}
