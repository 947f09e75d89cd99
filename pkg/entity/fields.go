package entity

import (
	"maps"
	"reflect"
	"strings"
)

// ShallowMerge returns a copy of entity with the top-level fields in changes
// overwritten. It supports maps with string keys and structs (pointers to
// them included); fields are matched by json tag or name. Changes that do
// not fit a field are skipped.
func ShallowMerge[T any](entity T, changes map[string]any) T {
	if doc, ok := any(entity).(map[string]any); ok {
		out := make(map[string]any, len(doc)+len(changes))
		maps.Copy(out, doc)
		maps.Copy(out, changes)
		return any(out).(T)
	}

	v := reflect.ValueOf(&entity).Elem()
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return entity
		}
		cp := reflect.New(v.Elem().Type())
		cp.Elem().Set(v.Elem())
		mergeInto(cp.Elem(), changes)
		return cp.Interface().(T)
	case reflect.Interface:
		return entity
	}

	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	mergeInto(cp, changes)
	return cp.Interface().(T)
}

func mergeInto(v reflect.Value, changes map[string]any) {
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len()+len(changes))
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		for name, val := range changes {
			if cv, ok := assignable(val, v.Type().Elem()); ok {
				out.SetMapIndex(reflect.ValueOf(name).Convert(v.Type().Key()), cv)
			}
		}
		v.Set(out)
	case reflect.Struct:
		fields := fieldsOf(v.Type())
		for name, val := range changes {
			idx, ok := fields[name]
			if !ok {
				continue
			}
			f, err := v.FieldByIndexErr(idx)
			if err != nil || !f.CanSet() {
				continue
			}
			if cv, ok := assignable(val, f.Type()); ok {
				f.Set(cv)
			}
		}
	}
}

func assignable(val any, t reflect.Type) (reflect.Value, bool) {
	if val == nil {
		return reflect.Zero(t), true
	}

	rv := reflect.ValueOf(val)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, true
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return rv.Convert(t), true
	case t.Kind() == reflect.Pointer:
		if inner, ok := assignable(val, t.Elem()); ok {
			p := reflect.New(t.Elem())
			p.Elem().Set(inner)
			return p, true
		}
	case rv.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), true
	}
	return reflect.Value{}, false
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// Fields lists the top-level fields of entity as changes: map entries, or
// exported struct fields under their json name.
func Fields[T any](entity T) map[string]any {
	if doc, ok := any(entity).(map[string]any); ok {
		return doc
	}

	v := indirect(reflect.ValueOf(any(entity)))
	out := map[string]any{}
	switch {
	case !v.IsValid():
	case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
	case v.Kind() == reflect.Struct:
		for _, f := range reflect.VisibleFields(v.Type()) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			fv, err := v.FieldByIndexErr(f.Index)
			if err != nil {
				continue
			}
			out[fieldName(f)] = fv.Interface()
		}
	}
	return out
}

func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return f.Name
}

// SameEntity reports whether b is the very value a: identity for maps,
// pointers and slices, equality for other values.
func SameEntity[T any](a, b T) bool {
	va, vb := reflect.ValueOf(any(a)), reflect.ValueOf(any(b))
	if !va.IsValid() || !vb.IsValid() {
		return va.IsValid() == vb.IsValid()
	}
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Comparable() && vb.Comparable() {
		return va.Equal(vb)
	}
	return reflect.DeepEqual(a, b)
}
