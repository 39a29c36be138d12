// Package codec serializes arbitrary Go values into a compact binary form
// built on the protobuf wire format. A payload is a single Value message:
//
//	message Value {            // exactly one field is set
//	  uint64  null   = 1;
//	  bool    bool   = 2;
//	  sint64  int    = 3;
//	  uint64  uint   = 4;
//	  fixed64 float  = 5;
//	  string  string = 6;
//	  bytes   bytes  = 7;
//	  List    list   = 8;      // message List  { repeated Value items = 1; }
//	  Map     map    = 9;      // message Map   { repeated Entry entries = 1; }
//	}                          // message Entry { string key = 1; Value value = 2; }
//
// Structs encode as maps keyed by exported field name, arrays and slices
// as lists, and []byte / [N]byte as bytes. Generic decoding yields nil,
// bool, int64, uint64, float64, string, []byte, []any and map[string]any.
package codec

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"stash/internal/store"
)

const (
	fieldNull   protowire.Number = 1
	fieldBool   protowire.Number = 2
	fieldInt    protowire.Number = 3
	fieldUint   protowire.Number = 4
	fieldFloat  protowire.Number = 5
	fieldString protowire.Number = 6
	fieldBytes  protowire.Number = 7
	fieldList   protowire.Number = 8
	fieldMap    protowire.Number = 9

	fieldItem  protowire.Number = 1 // List.items, Map.entries
	fieldKey   protowire.Number = 1 // Entry.key
	fieldValue protowire.Number = 2 // Entry.value
)

// maxDepth caps nesting on both sides; it also stops pointer cycles.
const maxDepth = 256

// Codec is the default serializer.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)   { return Marshal(v) }
func (Codec) Unmarshal(b []byte) (any, error) { return Unmarshal(b) }
func (Codec) Decode(b []byte, dst any) error  { return Decode(b, dst) }

// Marshal encodes v. Channels, funcs, complex numbers and maps with
// non-string keys are rejected with store.ErrBadArgument.
func Marshal(v any) ([]byte, error) {
	return appendValue(nil, reflect.ValueOf(v), 0)
}

func appendValue(b []byte, rv reflect.Value, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", store.ErrBadArgument, maxDepth)
	}
	if !rv.IsValid() {
		return appendNull(b), nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return appendNull(b), nil
		}
		return appendValue(b, rv.Elem(), depth+1)

	case reflect.Bool:
		b = protowire.AppendTag(b, fieldBool, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(rv.Bool())), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b = protowire.AppendTag(b, fieldInt, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(rv.Int())), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b = protowire.AppendTag(b, fieldUint, protowire.VarintType)
		return protowire.AppendVarint(b, rv.Uint()), nil

	case reflect.Float32, reflect.Float64:
		b = protowire.AppendTag(b, fieldFloat, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, math.Float64bits(rv.Float())), nil

	case reflect.String:
		b = protowire.AppendTag(b, fieldString, protowire.BytesType)
		return protowire.AppendString(b, rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return appendNull(b), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b = protowire.AppendTag(b, fieldBytes, protowire.BytesType)
			return protowire.AppendBytes(b, rv.Bytes()), nil
		}
		return appendList(b, rv, depth)

	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(raw), rv)
			b = protowire.AppendTag(b, fieldBytes, protowire.BytesType)
			return protowire.AppendBytes(b, raw), nil
		}
		return appendList(b, rv, depth)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key type %s is not a string", store.ErrBadArgument, rv.Type().Key())
		}
		if rv.IsNil() {
			return appendNull(b), nil
		}
		keys := make([]string, 0, rv.Len())
		vals := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			vals[k] = iter.Value()
		}
		sort.Strings(keys)
		return appendMap(b, keys, func(k string) reflect.Value { return vals[k] }, depth)

	case reflect.Struct:
		t := rv.Type()
		var keys []string
		index := make(map[string]int, t.NumField())
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			keys = append(keys, f.Name)
			index[f.Name] = i
		}
		sort.Strings(keys)
		return appendMap(b, keys, func(k string) reflect.Value { return rv.Field(index[k]) }, depth)
	}

	return nil, fmt.Errorf("%w: cannot encode %s", store.ErrBadArgument, rv.Type())
}

func appendNull(b []byte) []byte {
	b = protowire.AppendTag(b, fieldNull, protowire.VarintType)
	return protowire.AppendVarint(b, 0)
}

func appendList(b []byte, rv reflect.Value, depth int) ([]byte, error) {
	var inner []byte
	for i := range rv.Len() {
		item, err := appendValue(nil, rv.Index(i), depth+1)
		if err != nil {
			return nil, err
		}
		inner = protowire.AppendTag(inner, fieldItem, protowire.BytesType)
		inner = protowire.AppendBytes(inner, item)
	}
	b = protowire.AppendTag(b, fieldList, protowire.BytesType)
	return protowire.AppendBytes(b, inner), nil
}

func appendMap(b []byte, keys []string, get func(string) reflect.Value, depth int) ([]byte, error) {
	var inner []byte
	for _, k := range keys {
		val, err := appendValue(nil, get(k), depth+1)
		if err != nil {
			return nil, err
		}
		var entry []byte
		entry = protowire.AppendTag(entry, fieldKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fieldValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, val)

		inner = protowire.AppendTag(inner, fieldItem, protowire.BytesType)
		inner = protowire.AppendBytes(inner, entry)
	}
	b = protowire.AppendTag(b, fieldMap, protowire.BytesType)
	return protowire.AppendBytes(b, inner), nil
}
