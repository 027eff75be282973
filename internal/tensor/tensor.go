// Package tensor holds the descriptor and materialized buffer types exchanged
// between the state files and the inference pipeline.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// MaxDims is the largest dimension count a descriptor may carry.
const MaxDims = 6

// DataType is the element type of a materialized tensor.
type DataType int

const (
	F32 DataType = iota
	F16
	U32
)

func (dt DataType) String() string {
	switch dt {
	case F32:
		return "F32"
	case F16:
		return "F16"
	case U32:
		return "U32"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// DataFormat is the memory layout tag of a tensor.
type DataFormat int

const (
	Normal DataFormat = iota
	NCHW
)

func (df DataFormat) String() string {
	switch df {
	case Normal:
		return "NORMAL"
	case NCHW:
		return "NCHW"
	default:
		return fmt.Sprintf("DataFormat(%d)", int(df))
	}
}

// Desc describes a tensor's element type, layout and extents.
//
// Dims is stored dimension-reversed: Dims[0] is the fastest varying extent.
// Use Shape for the outermost-first order.
type Desc struct {
	Type   DataType
	Format DataFormat
	Dims   []uint32
}

// NewDesc builds a descriptor from an outermost-first shape.
func NewDesc(dt DataType, df DataFormat, shape ...uint32) Desc {
	dims := make([]uint32, len(shape))
	for i, d := range shape {
		dims[len(shape)-1-i] = d
	}
	return Desc{Type: dt, Format: df, Dims: dims}
}

// NumDims returns the number of dimensions.
func (d Desc) NumDims() int {
	return len(d.Dims)
}

// Shape returns the extents outermost-first.
func (d Desc) Shape() []uint32 {
	out := make([]uint32, len(d.Dims))
	for i := range d.Dims {
		out[i] = d.Dims[len(d.Dims)-1-i]
	}
	return out
}

// NumElements returns the product of all extents. A descriptor with no
// dimensions holds a single element.
func (d Desc) NumElements() int {
	n := 1
	for _, dim := range d.Dims {
		n *= int(dim)
	}
	return n
}

// CheckedNumElements is NumElements that reports false when the product of
// the extents does not fit in an int.
func (d Desc) CheckedNumElements() (int, bool) {
	n := 1
	for _, dim := range d.Dims {
		if dim != 0 && n > math.MaxInt/int(dim) {
			return 0, false
		}
		n *= int(dim)
	}
	return n, true
}

func (d Desc) String() string {
	return fmt.Sprintf("%s/%s%v", d.Type, d.Format, d.Shape())
}

// namedLayouts maps tensor names with a fixed type/layout convention.
// A nil type means the run's default element type applies.
var namedLayouts = map[string]struct {
	dt *DataType
	df DataFormat
}{
	"tts_words":      {dt: ptr(U32), df: Normal},
	"tts_alignments": {df: Normal},
}

func ptr[T any](v T) *T { return &v }

// InferTypeAndFormat returns the element type and layout implied by a tensor
// name. Names without a convention use def with the NCHW layout.
func InferTypeAndFormat(name string, def DataType) (DataType, DataFormat) {
	rule, ok := namedLayouts[name]
	if !ok {
		return def, NCHW
	}
	if rule.dt != nil {
		return *rule.dt, rule.df
	}
	return def, rule.df
}

var errElementCount = errors.New("element count does not match descriptor")

// Tensor is a descriptor paired with an owned element buffer.
type Tensor struct {
	desc Desc
	data any // []float16.Float16, []float32 or []uint32
}

// New materializes values into a buffer of desc.Type. U32 values are
// truncated toward zero and must lie in [0, MaxUint32].
func New(desc Desc, values []float64) (*Tensor, error) {
	if len(values) != desc.NumElements() {
		return nil, fmt.Errorf("%w: %s expects %d elements, got %d",
			errElementCount, desc, desc.NumElements(), len(values))
	}

	t := &Tensor{desc: cloneDesc(desc)}
	switch desc.Type {
	case F32:
		buf := make([]float32, len(values))
		for i, v := range values {
			buf[i] = float32(v)
		}
		t.data = buf
	case F16:
		buf := make([]float16.Float16, len(values))
		for i, v := range values {
			buf[i] = float16.Fromfloat32(float32(v))
		}
		t.data = buf
	case U32:
		buf := make([]uint32, len(values))
		for i, v := range values {
			if math.IsNaN(v) || v < 0 || v > math.MaxUint32 {
				return nil, fmt.Errorf("element %d value %v out of range for U32", i, v)
			}
			buf[i] = uint32(v)
		}
		t.data = buf
	default:
		return nil, fmt.Errorf("unsupported data type %s", desc.Type)
	}
	return t, nil
}

// FromFloat32 wraps data as an F32 tensor without conversion.
func FromFloat32(desc Desc, data []float32) (*Tensor, error) {
	desc.Type = F32
	if len(data) != desc.NumElements() {
		return nil, fmt.Errorf("%w: %s expects %d elements, got %d",
			errElementCount, desc, desc.NumElements(), len(data))
	}
	return &Tensor{desc: cloneDesc(desc), data: append([]float32(nil), data...)}, nil
}

// FromUint32 wraps data as a U32 tensor without conversion.
func FromUint32(desc Desc, data []uint32) (*Tensor, error) {
	desc.Type = U32
	if len(data) != desc.NumElements() {
		return nil, fmt.Errorf("%w: %s expects %d elements, got %d",
			errElementCount, desc, desc.NumElements(), len(data))
	}
	return &Tensor{desc: cloneDesc(desc), data: append([]uint32(nil), data...)}, nil
}

func cloneDesc(d Desc) Desc {
	d.Dims = append([]uint32{}, d.Dims...)
	return d
}

// Desc returns a copy of the tensor's descriptor.
func (t *Tensor) Desc() Desc {
	return cloneDesc(t.desc)
}

// Len returns the number of elements in the buffer.
func (t *Tensor) Len() int {
	switch v := t.data.(type) {
	case []float32:
		return len(v)
	case []float16.Float16:
		return len(v)
	case []uint32:
		return len(v)
	default:
		return 0
	}
}

// Element returns element i widened to float64.
func (t *Tensor) Element(i int) float64 {
	switch v := t.data.(type) {
	case []float32:
		return float64(v[i])
	case []float16.Float16:
		return float64(v[i].Float32())
	case []uint32:
		return float64(v[i])
	default:
		panic(fmt.Sprintf("tensor: unexpected backing type %T", t.data))
	}
}

// Float64s returns all elements widened to float64.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = t.Element(i)
	}
	return out
}

// Float32s returns all elements converted to float32.
func (t *Tensor) Float32s() []float32 {
	out := make([]float32, t.Len())
	for i := range out {
		out[i] = float32(t.Element(i))
	}
	return out
}

// Int64s returns all elements converted to int64.
func (t *Tensor) Int64s() []int64 {
	out := make([]int64, t.Len())
	for i := range out {
		out[i] = int64(t.Element(i))
	}
	return out
}
