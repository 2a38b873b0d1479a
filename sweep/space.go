// Package sweep enumerates benchmark configurations. A Space declares the
// parameters to vary and the values to try for each; every element of its
// Cartesian product becomes one Record.
package sweep

import (
	"errors"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

var (
	// ErrEmptySpace is returned when a space or one of its parameters
	// has nothing to enumerate.
	ErrEmptySpace = errors.New("empty configuration space")

	// ErrUnknownParam is returned when a parameter is not declared.
	ErrUnknownParam = errors.New("unknown parameter")

	// ErrKind is returned when a value is not of the expected kind.
	ErrKind = errors.New("wrong value kind")
)

// Kind is the type of a parameter's values.
type Kind int

// Supported value kinds.
const (
	KindInvalid Kind = iota
	KindBool
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	default:
		return "invalid"
	}
}

// KindOf reports the kind of v.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int:
		return KindInt
	default:
		return KindInvalid
	}
}

// Param is one swept parameter and its candidate values, in the order
// they are tried.
type Param struct {
	Name   string `toml:"name"`
	Values []any  `toml:"values"`
}

// Kind returns the kind of the parameter's first value.
func (p Param) Kind() Kind {
	if len(p.Values) == 0 {
		return KindInvalid
	}

	return KindOf(p.Values[0])
}

// Space is an ordered list of parameters. The order is the enumeration
// order: the first parameter varies slowest.
type Space []Param

// Default returns the built-in benchmark space.
func Default() Space {
	return Space{
		{Name: "no_delay", Values: []any{false, true}},
		{Name: "package_size", Values: []any{64, 4096}},
		{Name: "conn", Values: []any{1, 10, 100, 1000}},
		{Name: "pipeline", Values: []any{1, 100, 1000}},
		{Name: "recv_buffer", Values: []any{16}},
		{Name: "threads", Values: []any{1, 2, 3, 4}},
	}
}

// Names returns the parameter names in enumeration order.
func (s Space) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}

	return names
}

// Param returns the named parameter.
func (s Space) Param(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}

	return Param{}, false
}

// Size returns the number of combinations in the space.
func (s Space) Size() int {
	if len(s) == 0 {
		return 0
	}

	n := 1
	for _, p := range s {
		n *= len(p.Values)
	}

	return n
}

// Validate checks that the space is non-empty, names are unique, and each
// parameter has at least one value of a single supported kind.
func (s Space) Validate() error {
	if len(s) == 0 {
		return ErrEmptySpace
	}

	seen := make(map[string]struct{}, len(s))

	for _, p := range s {
		if p.Name == "" {
			return fmt.Errorf("parameter with empty name")
		}

		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}

		seen[p.Name] = struct{}{}

		if len(p.Values) == 0 {
			return fmt.Errorf("parameter %q: %w", p.Name, ErrEmptySpace)
		}

		kind := p.Kind()
		for _, v := range p.Values {
			if k := KindOf(v); k == KindInvalid || k != kind {
				return fmt.Errorf("parameter %q value %v (%T): %w",
					p.Name, v, v, ErrKind)
			}
		}
	}

	return nil
}

// Require checks that name is declared with values of the given kind.
func (s Space) Require(name string, kind Kind) error {
	p, ok := s.Param(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownParam)
	}

	if p.Kind() != kind {
		return fmt.Errorf("%q is %s, want %s: %w",
			name, p.Kind(), kind, ErrKind)
	}

	return nil
}

type spaceFile struct {
	Param []Param `toml:"param"`
}

// Load reads a TOML space definition from path and validates it.
func Load(fs afero.Fs, path string) (Space, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read space %s: %w", path, err)
	}

	var file spaceFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("decode space %s: %w", path, err)
	}

	space := Space(file.Param)
	for i := range space {
		space[i].Values = normalize(space[i].Values)
	}

	if err := space.Validate(); err != nil {
		return nil, fmt.Errorf("space %s: %w", path, err)
	}

	return space, nil
}

// Encode writes the space in the TOML form accepted by Load.
func (s Space) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(spaceFile{Param: s})
}

// normalize maps the integer types produced by decoders onto int.
func normalize(values []any) []any {
	out := make([]any, len(values))

	for i, v := range values {
		switch n := v.(type) {
		case int64:
			out[i] = int(n)
		case int32:
			out[i] = int(n)
		case uint64:
			out[i] = int(n)
		default:
			out[i] = v
		}
	}

	return out
}
