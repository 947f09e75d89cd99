package entity

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"sync"
)

// Key is a primary or index key. Derived keys are normalized to string,
// int64 (integers and integral floats) or float64.
type Key = any

// Mode switches key diagnostics on or off.
type Mode uint8

const (
	ModeProduction Mode = iota
	ModeDevelopment
)

func (m Mode) String() string {
	if m == ModeDevelopment {
		return "development"
	}
	return "production"
}

// ParseMode accepts "development"/"dev" and "production"/"prod".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "development", "dev":
		return ModeDevelopment, nil
	case "production", "prod", "":
		return ModeProduction, nil
	}
	return ModeProduction, fmt.Errorf("unknown mode %q", s)
}

// Diagnostics controls the warnings emitted when a selector yields no key.
type Diagnostics struct {
	Mode   Mode
	Logger *slog.Logger
}

func (d Diagnostics) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

type selectorKind uint8

const (
	noSelector selectorKind = iota
	fieldSelector
	pathSelector
	funcSelector
)

// Selector derives a key from an entity: a field name, a path of field
// names, or a function. The zero Selector selects nothing.
type Selector[T any] struct {
	kind selectorKind
	path []string
	fn   func(T) (any, bool)
}

// Field selects a map entry or an exported struct field (by json tag or name).
func Field[T any](name string) Selector[T] {
	return Selector[T]{kind: fieldSelector, path: []string{name}}
}

// Path walks nested maps and structs, one segment at a time.
func Path[T any](segments ...string) Selector[T] {
	return Selector[T]{kind: pathSelector, path: append([]string(nil), segments...)}
}

// Func wraps a selector function; ok == false means the entity has no key.
func Func[T any](fn func(T) (any, bool)) Selector[T] {
	return Selector[T]{kind: funcSelector, fn: fn}
}

func (s Selector[T]) IsZero() bool {
	return s.kind == noSelector
}

func (s Selector[T]) String() string {
	switch s.kind {
	case fieldSelector:
		return s.path[0]
	case pathSelector:
		return strings.Join(s.path, ".")
	case funcSelector:
		return "func"
	}
	return "none"
}

// DeriveKey resolves the key of entity. ok is false when the selector
// yields nothing (missing field, nil value, zero selector).
func DeriveKey[T any](entity T, sel Selector[T]) (Key, bool) {
	var (
		v  any
		ok bool
	)

	switch sel.kind {
	case funcSelector:
		v, ok = sel.fn(entity)
	case fieldSelector, pathSelector:
		v, ok = walk(entity, sel.path)
	default:
		return nil, false
	}

	if !ok || v == nil {
		return nil, false
	}
	return normalizeKey(v), true
}

// DeriveKeyChecked is DeriveKey that warns about a missing key in
// development mode.
func DeriveKeyChecked[T any](entity T, sel Selector[T], diag Diagnostics) (Key, bool) {
	k, ok := DeriveKey(entity, sel)
	if !ok && diag.Mode == ModeDevelopment {
		diag.logger().Warn("key selector returned no value for entity, consider providing a selector function",
			"selector", sel.String(),
			"entity", fmt.Sprintf("%+v", entity),
		)
	}
	return k, ok
}

// NormalizeKey converts a caller-supplied key to the form stored in snapshots.
func NormalizeKey(k any) Key {
	if k == nil {
		return nil
	}
	return normalizeKey(k)
}

func normalizeKey(v any) Key {
	switch k := v.(type) {
	case string:
		return k
	case int64:
		return k
	case int:
		return int64(k)
	case float64:
		return normalizeFloat(k)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	}
	return v
}

// integral floats collapse to int64 so 1 and 1.0 share a map slot
func normalizeFloat(f float64) Key {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

func walk(entity any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}

	// fast path for decoded JSON documents
	if doc, ok := entity.(map[string]any); ok {
		v, ok := doc[path[0]]
		if !ok {
			return nil, false
		}
		if len(path) == 1 {
			return v, true
		}
		return walk(v, path[1:])
	}

	v := reflect.ValueOf(entity)
	for _, name := range path {
		var ok bool
		if v, ok = lookup(v, name); !ok {
			return nil, false
		}
	}

	v = indirect(v)
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func lookup(v reflect.Value, name string) (reflect.Value, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, false
	}

	switch v.Kind() {
	case reflect.Map:
		kt := v.Type().Key()
		if kt.Kind() != reflect.String {
			return reflect.Value{}, false
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(kt))
		if !mv.IsValid() {
			return reflect.Value{}, false
		}
		return mv, true
	case reflect.Struct:
		idx, ok := fieldsOf(v.Type())[name]
		if !ok {
			return reflect.Value{}, false
		}
		f, err := v.FieldByIndexErr(idx)
		if err != nil {
			return reflect.Value{}, false
		}
		return f, true
	}
	return reflect.Value{}, false
}

var structFields sync.Map // reflect.Type -> map[string][]int

// fieldsOf maps json names and Go names of exported fields to their index.
func fieldsOf(t reflect.Type) map[string][]int {
	if cached, ok := structFields.Load(t); ok {
		return cached.(map[string][]int)
	}

	fields := make(map[string][]int)
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if _, taken := fields[f.Name]; !taken {
			fields[f.Name] = f.Index
		}
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
			fields[tag] = f.Index
		}
	}

	actual, _ := structFields.LoadOrStore(t, fields)
	return actual.(map[string][]int)
}
