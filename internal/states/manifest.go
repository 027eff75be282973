// Package states reads and writes the text state files exchanged between
// pipeline stages: a shape manifest plus one data file per tensor.
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

var (
	// ErrIO marks a state file that could not be opened, read or written.
	ErrIO = errors.New("state file i/o")
	// ErrFormat marks a malformed manifest record or data file.
	ErrFormat = errors.New("malformed state file")
)

// MaxNameLen bounds tensor names read from a manifest.
const MaxNameLen = 255

// Entry is one manifest record.
type Entry struct {
	Name string
	Desc tensor.Desc
}

// Manifest is the parsed content of a shape manifest. Entries keeps the
// first-seen order of names; a repeated name replaces the earlier descriptor.
type Manifest struct {
	Entries    []Entry
	Duplicates []string
}

func (m *Manifest) put(name string, desc tensor.Desc) {
	for i := range m.Entries {
		if m.Entries[i].Name == name {
			m.Entries[i].Desc = desc
			m.Duplicates = append(m.Duplicates, name)
			return
		}
	}
	m.Entries = append(m.Entries, Entry{Name: name, Desc: desc})
}

// ParseManifest opens the manifest at path and parses it with ReadManifest.
func ParseManifest(path string, def tensor.DataType) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open manifest: %w", ErrIO, err)
	}
	defer f.Close()

	m, err := ReadManifest(f, def)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ReadManifest parses whitespace separated records of the form
//
//	name n d_{n-1} ... d_0
//
// The i-th dimension token fills Dims[n-1-i]. Element type and layout are
// inferred from the name with def as the default element type.
func ReadManifest(r io.Reader, def tensor.DataType) (*Manifest, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	m := &Manifest{}
	for sc.Scan() {
		name := sc.Text()
		if len(name) > MaxNameLen {
			return nil, fmt.Errorf("%w: tensor name %.32q... exceeds %d bytes", ErrFormat, name, MaxNameLen)
		}
		if err := checkName(name); err != nil {
			return nil, err
		}

		n, err := scanUint(sc, name, "dimension count")
		if err != nil {
			return nil, err
		}
		if n > tensor.MaxDims {
			return nil, fmt.Errorf("%w: tensor %q declares %d dimensions (max %d)", ErrFormat, name, n, tensor.MaxDims)
		}

		dims := make([]uint32, n)
		for i := range dims {
			d, err := scanUint(sc, name, fmt.Sprintf("dimension %d of %d", i+1, n))
			if err != nil {
				return nil, err
			}
			dims[len(dims)-1-i] = d
		}

		dt, df := tensor.InferTypeAndFormat(name, def)
		desc := tensor.Desc{Type: dt, Format: df, Dims: dims}
		if _, ok := desc.CheckedNumElements(); !ok {
			return nil, fmt.Errorf("%w: tensor %q: element count of shape %v overflows", ErrFormat, name, desc.Shape())
		}
		m.put(name, desc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", ErrIO, err)
	}

	return m, nil
}

func scanUint(sc *bufio.Scanner, name, what string) (uint32, error) {
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("%w: read manifest: %w", ErrIO, err)
		}
		return 0, fmt.Errorf("%w: tensor %q: missing %s", ErrFormat, name, what)
	}
	v, err := strconv.ParseUint(sc.Text(), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: tensor %q: %s %q is not an unsigned integer", ErrFormat, name, what, sc.Text())
	}
	return uint32(v), nil
}

// WriteManifest writes entries in order in the format read by ReadManifest:
// the name line, the dimension count line, then the dimensions outermost-first
// each followed by a space. No line break follows the dimensions.
func WriteManifest(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		fmt.Fprintf(bw, "%s\n%d\n", e.Name, e.Desc.NumDims())
		for _, d := range e.Desc.Shape() {
			fmt.Fprintf(bw, "%d ", d)
		}
	}
	return bw.Flush()
}
