package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"stash/internal/store"
)

// Unmarshal decodes a payload produced by Marshal into the generic tree.
// Bytes that cannot be parsed as protobuf wire data fail with
// store.ErrCorrupt; well-formed wire data that is not a Value fails with
// store.ErrBadFormat.
func Unmarshal(b []byte) (any, error) {
	return consumeValue(b, 0)
}

func corrupt(what string, n int) error {
	return fmt.Errorf("%w: %s: %w", store.ErrCorrupt, what, protowire.ParseError(n))
}

func badFormat(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{store.ErrBadFormat}, args...)...)
}

func wantType(num protowire.Number, got, want protowire.Type) error {
	if got != want {
		return badFormat("field %d has wire type %d, want %d", num, got, want)
	}
	return nil
}

func consumeValue(b []byte, depth int) (any, error) {
	if depth > maxDepth {
		return nil, badFormat("nesting deeper than %d", maxDepth)
	}

	var (
		out  any
		seen int
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, corrupt("value tag", n)
		}
		b = b[n:]

		switch num {
		case fieldNull, fieldBool, fieldInt, fieldUint:
			if err := wantType(num, typ, protowire.VarintType); err != nil {
				return nil, err
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, corrupt("varint", n)
			}
			b = b[n:]
			switch num {
			case fieldNull:
				out = nil
			case fieldBool:
				out = protowire.DecodeBool(v)
			case fieldInt:
				out = protowire.DecodeZigZag(v)
			case fieldUint:
				out = v
			}

		case fieldFloat:
			if err := wantType(num, typ, protowire.Fixed64Type); err != nil {
				return nil, err
			}
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, corrupt("float", n)
			}
			b = b[n:]
			out = math.Float64frombits(v)

		case fieldString, fieldBytes, fieldList, fieldMap:
			if err := wantType(num, typ, protowire.BytesType); err != nil {
				return nil, err
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, corrupt("length-delimited field", n)
			}
			b = b[n:]
			var err error
			switch num {
			case fieldString:
				out = string(v)
			case fieldBytes:
				out = append([]byte{}, v...)
			case fieldList:
				out, err = consumeList(v, depth)
			case fieldMap:
				out, err = consumeMap(v, depth)
			}
			if err != nil {
				return nil, err
			}

		default:
			return nil, badFormat("unknown value field %d", num)
		}
		seen++
	}

	switch seen {
	case 0:
		return nil, badFormat("empty value")
	case 1:
		return out, nil
	default:
		return nil, badFormat("value carries %d kinds", seen)
	}
}

func consumeList(b []byte, depth int) ([]any, error) {
	items := []any{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, corrupt("list tag", n)
		}
		b = b[n:]
		if num != fieldItem {
			return nil, badFormat("unknown list field %d", num)
		}
		if err := wantType(num, typ, protowire.BytesType); err != nil {
			return nil, err
		}
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, corrupt("list item", n)
		}
		b = b[n:]
		item, err := consumeValue(raw, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func consumeMap(b []byte, depth int) (map[string]any, error) {
	m := map[string]any{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, corrupt("map tag", n)
		}
		b = b[n:]
		if num != fieldItem {
			return nil, badFormat("unknown map field %d", num)
		}
		if err := wantType(num, typ, protowire.BytesType); err != nil {
			return nil, err
		}
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, corrupt("map entry", n)
		}
		b = b[n:]
		key, val, err := consumeEntry(raw, depth)
		if err != nil {
			return nil, err
		}
		if _, dup := m[key]; dup {
			return nil, badFormat("duplicate map key %q", key)
		}
		m[key] = val
	}
	return m, nil
}

func consumeEntry(b []byte, depth int) (string, any, error) {
	var (
		key      string
		val      any
		hasValue bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, corrupt("entry tag", n)
		}
		b = b[n:]
		if num != fieldKey && num != fieldValue {
			return "", nil, badFormat("unknown entry field %d", num)
		}
		if err := wantType(num, typ, protowire.BytesType); err != nil {
			return "", nil, err
		}
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return "", nil, corrupt("entry field", n)
		}
		b = b[n:]
		if num == fieldKey {
			key = string(raw)
			continue
		}
		v, err := consumeValue(raw, depth+1)
		if err != nil {
			return "", nil, err
		}
		val, hasValue = v, true
	}
	if !hasValue {
		return "", nil, badFormat("map entry %q has no value", key)
	}
	return key, val, nil
}
