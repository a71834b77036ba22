// Package raw reads untrusted simulator payloads. Every accessor tolerates a
// missing key or a value of the wrong type and reports it instead of failing.
package raw

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

var (
	ErrNotObject = errors.New("payload is not a JSON object")
	ErrNotArray  = errors.New("payload is not a JSON array")
)

// Object is one decoded JSON object.
type Object map[string]any

func DecodeObject(data []byte) (Object, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "decoding payload")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Object(m), nil
}

// DecodeArray decodes a JSON array of objects. Elements that are not objects
// are skipped.
func DecodeArray(data []byte) ([]Object, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "decoding payload")
	}
	items, ok := v.([]any)
	if !ok {
		return nil, ErrNotArray
	}
	objects := make([]Object, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			objects = append(objects, Object(m))
		}
	}
	return objects, nil
}

func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Number returns the finite numeric value stored under key. Numeric strings
// are accepted.
func (o Object) Number(key string) (float64, bool) {
	return toNumber(o[key])
}

// Float returns the numeric value under key or def.
func (o Object) Float(key string, def float64) float64 {
	if n, ok := o.Number(key); ok {
		return n
	}
	return def
}

// Int returns the numeric value under key truncated to an int, or def.
func (o Object) Int(key string, def int) int {
	n, ok := o.Number(key)
	if !ok {
		return def
	}
	return clampInt(n)
}

// String returns the text under key. Numbers are formatted, anything else
// yields "".
func (o Object) String(key string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

func (o Object) Bool(key string) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	}
	return false
}

// IsString reports whether the value under key is a JSON string.
func (o Object) IsString(key string) bool {
	_, ok := o[key].(string)
	return ok
}

// IsNumber reports whether the value under key is a JSON number.
func (o Object) IsNumber(key string) bool {
	switch o[key].(type) {
	case float64, json.Number:
		return true
	}
	return false
}

// List returns the array under key, or nil.
func (o Object) List(key string) []any {
	items, _ := o[key].([]any)
	return items
}

// Strings returns the string elements of the array under key.
func (o Object) Strings(key string) []string {
	items := o.List(key)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Numbers returns the numeric elements of the array under key.
func (o Object) Numbers(key string) []float64 {
	items := o.List(key)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		if n, ok := toNumber(item); ok {
			out = append(out, n)
		}
	}
	return out
}

func toNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func clampInt(n float64) int {
	if n >= math.MaxInt {
		return math.MaxInt
	}
	if n <= math.MinInt {
		return math.MinInt
	}
	return int(n)
}
