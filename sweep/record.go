package sweep

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Setting is the value selected for one parameter.
type Setting struct {
	Name  string
	Value any
}

// Result is the parsed outcome of one run. OK is false when the run
// produced no measurement.
type Result struct {
	Throughput float64
	OK         bool
}

// Record is one complete configuration: a value for every parameter of
// the space, in space order, plus the outcome of running it.
type Record struct {
	Index    int
	Settings []Setting
	Result   Result
	LogPath  string
}

// Value returns the value selected for name.
func (r Record) Value(name string) (any, bool) {
	for _, s := range r.Settings {
		if s.Name == name {
			return s.Value, true
		}
	}

	return nil, false
}

// Int returns the integer value selected for name.
func (r Record) Int(name string) (int, error) {
	v, ok := r.Value(name)
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownParam)
	}

	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("%q is %T, want int: %w", name, v, ErrKind)
	}

	return n, nil
}

// Bool returns the boolean value selected for name.
func (r Record) Bool(name string) (bool, error) {
	v, ok := r.Value(name)
	if !ok {
		return false, fmt.Errorf("%q: %w", name, ErrUnknownParam)
	}

	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%q is %T, want bool: %w", name, v, ErrKind)
	}

	return b, nil
}

// Key identifies the configuration by its settings, e.g.
// "no_delay=0,package_size=64". Booleans are written as 0 or 1.
func (r Record) Key() string {
	parts := make([]string, len(r.Settings))
	for i, s := range r.Settings {
		parts[i] = s.Name + "=" + FormatValue(s.Value)
	}

	return strings.Join(parts, ",")
}

// FormatValue renders a setting value the way command lines expect it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}

		return "0"
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// MarshalJSON writes the settings as object keys in space order, followed
// by result (null when there is none) and log.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	writeField := func(name string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(name)
		if err != nil {
			return err
		}

		val, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)

		return nil
	}

	for _, s := range r.Settings {
		if err := writeField(s.Name, s.Value); err != nil {
			return nil, err
		}
	}

	var result any
	if r.Result.OK {
		result = r.Result.Throughput
	}

	if err := writeField("result", result); err != nil {
		return nil, err
	}

	if r.LogPath != "" {
		if err := writeField("log", r.LogPath); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}
