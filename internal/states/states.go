package states

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-tts-harness/internal/tensor"
)

// DataFileExt is appended to a tensor name to form its data file name.
const DataFileExt = ".txt"

// Map holds materialized tensors by name.
type Map map[string]*tensor.Tensor

// Descs returns the descriptor of every tensor in m.
func (m Map) Descs() map[string]tensor.Desc {
	out := make(map[string]tensor.Desc, len(m))
	for name, t := range m {
		out[name] = t.Desc()
	}
	return out
}

// TensorByName returns the named tensor, so a Map can stand in as a
// TensorSource.
func (m Map) TensorByName(name string) (*tensor.Tensor, error) {
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("tensor %q not found", name)
	}
	return t, nil
}

// checkName rejects tensor names that would resolve outside the state
// directory once joined into a data file path.
func checkName(name string) error {
	if name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: tensor name %q is not a plain file name", ErrFormat, name)
	}
	return nil
}

// DataPath returns the data file path of the named tensor inside dir.
func DataPath(dir, name string) string {
	return filepath.Join(dir, name+DataFileExt)
}

// PrepareStates parses dir/manifestName and loads the data file of every
// entry. def is the element type of tensors without a naming convention.
func PrepareStates(def tensor.DataType, dir, manifestName string) (Map, error) {
	m, err := ParseManifest(filepath.Join(dir, manifestName), def)
	if err != nil {
		return nil, err
	}
	for _, name := range m.Duplicates {
		slog.Warn("duplicate tensor in manifest, keeping last record",
			slog.String("manifest", manifestName),
			slog.String("tensor", name),
		)
	}

	out := make(Map, len(m.Entries))
	for _, e := range m.Entries {
		t, err := LoadTensorData(DataPath(dir, e.Name), e.Desc)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", e.Name, err)
		}
		out[e.Name] = t
	}
	return out, nil
}

// TensorSource resolves tensors of a completed pipeline run by name.
type TensorSource interface {
	TensorByName(name string) (*tensor.Tensor, error)
}

// ReadNameList reads whitespace separated tensor names until EOF.
func ReadNameList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open name list: %w", ErrIO, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)

	var names []string
	for sc.Scan() {
		if len(sc.Text()) > MaxNameLen {
			return nil, fmt.Errorf("%w: %s: tensor name exceeds %d bytes", ErrFormat, path, MaxNameLen)
		}
		if err := checkName(sc.Text()); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		names = append(names, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read name list %s: %w", ErrIO, path, err)
	}
	return names, nil
}

// SaveStates resolves every name listed in dir/namesFile against src, writes
// the descriptors to dir/manifestName in list order and each tensor's data to
// its own file in dir.
func SaveStates(src TensorSource, dir, namesFile, manifestName string) (err error) {
	names, err := ReadNameList(filepath.Join(dir, namesFile))
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(names))
	resolved := make([]*tensor.Tensor, 0, len(names))
	for _, name := range names {
		t, err := src.TensorByName(name)
		if err != nil {
			return fmt.Errorf("resolve output %q: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Desc: t.Desc()})
		resolved = append(resolved, t)
	}

	manifestPath := filepath.Join(dir, manifestName)
	f, err := os.Create(manifestPath)
	if err != nil {
		return fmt.Errorf("%w: create manifest: %w", ErrIO, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: close %s: %w", ErrIO, manifestPath, cerr))
		}
	}()

	if err := WriteManifest(f, entries); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, manifestPath, err)
	}

	for i, e := range entries {
		if err := SaveTensorData(DataPath(dir, e.Name), resolved[i]); err != nil {
			return fmt.Errorf("save %q: %w", e.Name, err)
		}
	}
	return nil
}
