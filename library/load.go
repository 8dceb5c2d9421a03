package library

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/upsync/internal/fault"
	"github.com/pelletier/go-toml/v2"
)

// Ext is the descriptor file extension.
const Ext = ".toml"

// Load reads and validates the descriptor file at path. Unknown keys are
// rejected. A missing name defaults to the file name without extension.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.Filesystem, "read", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fault.New(fault.Config, "load", path, err)
	}
	d.Path = path
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), Ext)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Parse decodes a descriptor without validating it.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, &positionError{row: row, col: col, err: err}
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			keys := make([]string, len(serr.Errors))
			for i, e := range serr.Errors {
				keys[i] = strings.Join(e.Key(), ".")
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil, err
	}
	return &d, nil
}

type positionError struct {
	row, col int
	err      error
}

func (e *positionError) Error() string {
	return fmt.Sprintf("line %d, column %d: %v", e.row, e.col, e.err)
}

func (e *positionError) Unwrap() error { return e.err }

// LoadDir loads every descriptor file in dir, sorted by name. Two files
// declaring the same name are a Config fault.
func LoadDir(dir string) ([]*Descriptor, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, fault.New(fault.Config, "load", dir, err)
	}
	if len(paths) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, fault.New(fault.Filesystem, "load", dir, err)
		}
	}

	descs := make([]*Descriptor, 0, len(paths))
	byName := make(map[string]string, len(paths))
	for _, p := range paths {
		d, err := Load(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := byName[d.Name]; ok {
			return nil, fault.Errorf(fault.Config, "load", p, "library %q is also declared in %s", d.Name, prev)
		}
		byName[d.Name] = p
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs, nil
}

// Select returns the descriptors named in names, in the order given, or
// all of them when names is empty. An unknown name is a Config fault.
func Select(descs []*Descriptor, names []string) ([]*Descriptor, error) {
	if len(names) == 0 {
		return descs, nil
	}
	byName := make(map[string]*Descriptor, len(descs))
	for _, d := range descs {
		byName[d.Name] = d
	}
	out := make([]*Descriptor, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, fault.Errorf(fault.Config, "select", "", "unknown library %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}
