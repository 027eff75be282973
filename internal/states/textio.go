package states

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/example/go-tts-harness/internal/tensor"
)

// valuesPerLine is the number of elements written before each line break.
const valuesPerLine = 10

// maxPrealloc caps the buffer reserved up front from a manifest count.
const maxPrealloc = 1 << 16

// LoadTensorData reads the data file at path and materializes it as desc.
func LoadTensorData(path string, desc tensor.Desc) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open tensor data: %w", ErrIO, err)
	}
	defer f.Close()

	count, ok := desc.CheckedNumElements()
	if !ok {
		return nil, fmt.Errorf("%w: tensor data %s: element count of shape %v overflows", ErrFormat, path, desc.Shape())
	}

	values, err := ReadTensorData(f, count)
	if err != nil {
		return nil, fmt.Errorf("tensor data %s: %w", path, err)
	}

	t, err := tensor.New(desc, values)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor data %s: %w", ErrFormat, path, err)
	}
	return t, nil
}

// ReadTensorData parses count whitespace separated floating point tokens from
// r. Tokens after the first count are not read.
func ReadTensorData(r io.Reader, count int) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	values := make([]float64, 0, min(max(count, 0), maxPrealloc))
	for len(values) < count && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d %q is not a number", ErrFormat, len(values), sc.Text())
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read tensor data: %w", ErrIO, err)
	}
	if len(values) < count {
		return nil, fmt.Errorf("%w: expected %d values, found %d", ErrFormat, count, len(values))
	}

	return values, nil
}

// Elements is the read side of a tensor as seen by the data writer.
type Elements interface {
	Len() int
	Element(i int) float64
}

// SaveTensorData writes t to path with WriteTensorData. An interrupted write
// leaves a truncated file behind.
func SaveTensorData(path string, t Elements) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create tensor data: %w", ErrIO, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: close %s: %w", ErrIO, path, cerr))
		}
	}()

	if err := WriteTensorData(f, t); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}
	return nil
}

// WriteTensorData writes every element as "%f " with a newline after each
// tenth value.
func WriteTensorData(w io.Writer, t Elements) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)
	for i := range t.Len() {
		buf = strconv.AppendFloat(buf[:0], t.Element(i), 'f', 6, 64)
		buf = append(buf, ' ')
		if i%valuesPerLine == valuesPerLine-1 {
			buf = append(buf, '\n')
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
