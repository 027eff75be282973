package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Harness HarnessConfig `mapstructure:"harness"`
	Log     LogConfig     `mapstructure:"log"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	APIVersion     int    `mapstructure:"api_version"`
	ONNXModelPath  string `mapstructure:"onnx_model_path"`
}

type HarnessConfig struct {
	Iterations     int    `mapstructure:"iterations"`
	InputManifest  string `mapstructure:"input_manifest"`
	OutputNames    string `mapstructure:"output_names"`
	OutputManifest string `mapstructure:"output_manifest"`
	Format         string `mapstructure:"format"`
	WAVPath        string `mapstructure:"wav_path"`
	WAVSampleRate  int    `mapstructure:"wav_sample_rate"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTVersion:     "",
			APIVersion:     23,
			ONNXModelPath:  "",
		},
		Harness: HarnessConfig{
			Iterations:     1,
			InputManifest:  "input_shape.txt",
			OutputNames:    "output_name.txt",
			OutputManifest: "output_shape.txt",
			Format:         "text",
			WAVPath:        "",
			WAVSampleRate:  22050,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int("runtime-api-version", defaults.Runtime.APIVersion, "ONNX Runtime C API version")
	fs.String("runtime-onnx-model-path", defaults.Runtime.ONNXModelPath, "ONNX graph to run (default: model path with .bolt replaced by .onnx)")
	fs.Int("iterations", defaults.Harness.Iterations, "Number of load/run/verify iterations")
	fs.String("harness-input-manifest", defaults.Harness.InputManifest, "Input shape manifest inside the sequences directory")
	fs.String("harness-output-names", defaults.Harness.OutputNames, "Output tensor name list inside the sequences directory")
	fs.String("harness-output-manifest", defaults.Harness.OutputManifest, "Output shape manifest written to the sequences directory")
	fs.String("format", defaults.Harness.Format, "Report format: text|table|json|yaml")
	fs.String("wav", defaults.Harness.WAVPath, "Write melgan_vocoder output to this WAV file")
	fs.Int("wav-sample-rate", defaults.Harness.WAVSampleRate, "Sample rate of the exported WAV")
	fs.String("log-level", defaults.Log.Level, "Log level: debug|info|warn|error")
	fs.String("log-file", defaults.Log.File, "Also write logs to this rotating file")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("TTSHARNESS")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "TTSHARNESS_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("tts-harness")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values that cannot be caught by the decoder.
func (c Config) Validate() error {
	if c.Harness.Iterations < 1 {
		return fmt.Errorf("harness.iterations must be at least 1, got %d", c.Harness.Iterations)
	}
	switch c.Harness.Format {
	case "text", "table", "json", "yaml":
	default:
		return fmt.Errorf("harness.format must be text|table|json|yaml, got %q", c.Harness.Format)
	}
	if c.Harness.WAVSampleRate < 1 {
		return fmt.Errorf("harness.wav_sample_rate must be positive, got %d", c.Harness.WAVSampleRate)
	}
	if c.Runtime.APIVersion < 1 {
		return fmt.Errorf("runtime.api_version must be positive, got %d", c.Runtime.APIVersion)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.api_version", c.Runtime.APIVersion)
	v.SetDefault("runtime.onnx_model_path", c.Runtime.ONNXModelPath)
	v.SetDefault("harness.iterations", c.Harness.Iterations)
	v.SetDefault("harness.input_manifest", c.Harness.InputManifest)
	v.SetDefault("harness.output_names", c.Harness.OutputNames)
	v.SetDefault("harness.output_manifest", c.Harness.OutputManifest)
	v.SetDefault("harness.format", c.Harness.Format)
	v.SetDefault("harness.wav_path", c.Harness.WAVPath)
	v.SetDefault("harness.wav_sample_rate", c.Harness.WAVSampleRate)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_version", "runtime-ort-version")
	v.RegisterAlias("runtime.api_version", "runtime-api-version")
	v.RegisterAlias("runtime.onnx_model_path", "runtime-onnx-model-path")
	v.RegisterAlias("harness.iterations", "iterations")
	v.RegisterAlias("harness.input_manifest", "harness-input-manifest")
	v.RegisterAlias("harness.output_names", "harness-output-names")
	v.RegisterAlias("harness.output_manifest", "harness-output-manifest")
	v.RegisterAlias("harness.format", "format")
	v.RegisterAlias("harness.wav_path", "wav")
	v.RegisterAlias("harness.wav_sample_rate", "wav-sample-rate")
	v.RegisterAlias("log.level", "log-level")
	v.RegisterAlias("log.file", "log-file")
}
