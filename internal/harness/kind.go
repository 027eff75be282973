// Package harness feeds state files to an inference pipeline, verifies the
// output signature and persists the outputs for the next stage.
package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-tts-harness/internal/tensor"
)

var (
	// ErrConfig marks an invalid invocation: unknown sub-network, unknown
	// model suffix or bad option.
	ErrConfig = errors.New("invalid configuration")
	// ErrVerification is returned after the loop when any iteration's output
	// missed its signature.
	ErrVerification = errors.New("verify failed")
)

// Kind is a sub-network of the TTS pipeline.
type Kind int

const (
	EncoderDecoder Kind = iota
	Postnet
	MelGANVocoder
)

// Signature is the expected output sum of a sub-network, used as a smoke
// test.
type Signature struct {
	Kind        Kind
	ExpectedSum float64
	Tolerance   float64
}

// Matches reports whether |sum - ExpectedSum| < Tolerance.
func (s Signature) Matches(sum float64) bool {
	d := sum - s.ExpectedSum
	if d < 0 {
		d = -d
	}
	return d < s.Tolerance
}

type kindInfo struct {
	name      string
	outputs   []string
	signature Signature
}

var kinds = []kindInfo{
	EncoderDecoder: {
		name:      "encoder_decoder",
		outputs:   []string{"decoder_result", "decoder_position"},
		signature: Signature{Kind: EncoderDecoder, ExpectedSum: 6921, Tolerance: 1100},
	},
	Postnet: {
		name:      "postnet",
		outputs:   []string{"mel"},
		signature: Signature{Kind: Postnet, ExpectedSum: -11987.7, Tolerance: 1},
	},
	MelGANVocoder: {
		name:      "melgan_vocoder",
		outputs:   []string{"output"},
		signature: Signature{Kind: MelGANVocoder, ExpectedSum: -0.665192, Tolerance: 0.7},
	},
}

// KindNames returns the accepted sub-network names.
func KindNames() []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.name
	}
	return names
}

// ParseKind resolves a sub-network name.
func ParseKind(name string) (Kind, error) {
	for i, k := range kinds {
		if k.name == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unrecognized sub network %q (want %s)", ErrConfig, name, strings.Join(KindNames(), "|"))
}

func (k Kind) valid() bool {
	return k >= 0 && int(k) < len(kinds)
}

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// Outputs returns the tensors a run of k must produce. The first one is
// verified.
func (k Kind) Outputs() []string {
	if !k.valid() {
		return nil
	}
	return append([]string(nil), kinds[k].outputs...)
}

// Signature returns the expected output signature of k.
func (k Kind) Signature() Signature {
	if !k.valid() {
		return Signature{Kind: k}
	}
	return kinds[k].signature
}

// modelSuffixes maps model file name suffixes to the precision the model
// was exported with.
var modelSuffixes = []struct {
	suffix string
	dt     tensor.DataType
}{
	{"_f16.bolt", tensor.F16},
	{"_f32.bolt", tensor.F32},
	{"t8_q.bolt", tensor.F16},
}

// PrecisionFromModelPath returns the default element type of a model from
// its file name suffix.
func PrecisionFromModelPath(path string) (tensor.DataType, error) {
	for _, s := range modelSuffixes {
		if strings.HasSuffix(path, s.suffix) {
			return s.dt, nil
		}
	}
	suffix := path
	if len(suffix) > len(modelSuffixes[0].suffix) {
		suffix = suffix[len(suffix)-len(modelSuffixes[0].suffix):]
	}
	return 0, fmt.Errorf("%w: unrecognized model file path suffix %q", ErrConfig, suffix)
}
