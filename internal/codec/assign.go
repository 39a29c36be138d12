package codec

import (
	"fmt"
	"math"
	"reflect"

	"stash/internal/store"
)

// Decode unmarshals b and stores the result in the value pointed to by dst.
// A payload whose shape does not fit dst (wrong kind, wrong tuple arity,
// unknown struct field, numeric overflow) fails with store.ErrBadFormat.
func Decode(b []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer, got %T", store.ErrBadArgument, dst)
	}
	v, err := Unmarshal(b)
	if err != nil {
		return err
	}
	return assign(rv.Elem(), v, "$")
}

func mismatch(path string, v any, t reflect.Type) error {
	return badFormat("%s: cannot store %T in %s", path, v, t)
}

func assign(rv reflect.Value, v any, path string) error {
	t := rv.Type()

	if v == nil {
		rv.SetZero()
		return nil
	}

	switch t.Kind() {
	case reflect.Interface:
		val := reflect.ValueOf(v)
		if !val.Type().AssignableTo(t) {
			return mismatch(path, v, t)
		}
		rv.Set(val)
		return nil

	case reflect.Pointer:
		elem := reflect.New(t.Elem())
		if err := assign(elem.Elem(), v, path); err != nil {
			return err
		}
		rv.Set(elem)
		return nil

	case reflect.Bool:
		bv, ok := v.(bool)
		if !ok {
			return mismatch(path, v, t)
		}
		rv.SetBool(bv)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var iv int64
		switch n := v.(type) {
		case int64:
			iv = n
		case uint64:
			if n > math.MaxInt64 {
				return badFormat("%s: %d overflows %s", path, n, t)
			}
			iv = int64(n)
		default:
			return mismatch(path, v, t)
		}
		if rv.OverflowInt(iv) {
			return badFormat("%s: %d overflows %s", path, iv, t)
		}
		rv.SetInt(iv)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var uv uint64
		switch n := v.(type) {
		case uint64:
			uv = n
		case int64:
			if n < 0 {
				return badFormat("%s: negative %d in %s", path, n, t)
			}
			uv = uint64(n)
		default:
			return mismatch(path, v, t)
		}
		if rv.OverflowUint(uv) {
			return badFormat("%s: %d overflows %s", path, uv, t)
		}
		rv.SetUint(uv)
		return nil

	case reflect.Float32, reflect.Float64:
		var fv float64
		switch n := v.(type) {
		case float64:
			fv = n
		case int64:
			fv = float64(n)
		case uint64:
			fv = float64(n)
		default:
			return mismatch(path, v, t)
		}
		if rv.OverflowFloat(fv) {
			return badFormat("%s: %g overflows %s", path, fv, t)
		}
		rv.SetFloat(fv)
		return nil

	case reflect.String:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, v, t)
		}
		rv.SetString(s)
		return nil

	case reflect.Slice:
		if raw, ok := v.([]byte); ok && t.Elem().Kind() == reflect.Uint8 {
			out := reflect.MakeSlice(t, len(raw), len(raw))
			reflect.Copy(out, reflect.ValueOf(raw))
			rv.Set(out)
			return nil
		}
		items, ok := v.([]any)
		if !ok {
			return mismatch(path, v, t)
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			if err := assign(out.Index(i), item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		rv.Set(out)
		return nil

	case reflect.Array:
		if raw, ok := v.([]byte); ok && t.Elem().Kind() == reflect.Uint8 {
			if len(raw) != t.Len() {
				return badFormat("%s: %d bytes for %s", path, len(raw), t)
			}
			reflect.Copy(rv, reflect.ValueOf(raw))
			return nil
		}
		items, ok := v.([]any)
		if !ok {
			return mismatch(path, v, t)
		}
		if len(items) != t.Len() {
			return badFormat("%s: %d items for %s", path, len(items), t)
		}
		for i, item := range items {
			if err := assign(rv.Index(i), item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return fmt.Errorf("%w: %s: map key type %s is not a string", store.ErrBadArgument, path, t.Key())
		}
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, v, t)
		}
		out := reflect.MakeMapWithSize(t, len(m))
		for k, item := range m {
			elem := reflect.New(t.Elem()).Elem()
			if err := assign(elem, item, path+"."+k); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), elem)
		}
		rv.Set(out)
		return nil

	case reflect.Struct:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, v, t)
		}
		rv.SetZero()
		for k, item := range m {
			f, found := t.FieldByName(k)
			if !found || !f.IsExported() || len(f.Index) != 1 {
				return badFormat("%s: %s has no field %q", path, t, k)
			}
			if err := assign(rv.Field(f.Index[0]), item, path+"."+k); err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %s: cannot decode into %s", store.ErrBadArgument, path, t)
}
