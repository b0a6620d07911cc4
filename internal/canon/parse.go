package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Parse decodes a JSON document into a Value, preserving object key order
// and number tokens exactly as written.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}

	// Reject trailing garbage - a valid document is exactly one value.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("canon: trailing data after JSON value")
	}

	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return nil, fmt.Errorf("canon: unexpected delimiter %q", t)
		}
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t.String()), nil
	case string:
		return String(t), nil
	default:
		return nil, fmt.Errorf("canon: unsupported token %T", tok)
	}
}

func parseObject(dec *json.Decoder) (Value, error) {
	obj := Object{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("canon: object key is not a string: %v", keyTok)
		}

		val, err := parseValue(dec)
		if err != nil {
			return nil, fmt.Errorf("canon: object[%q]: %w", key, err)
		}
		obj = append(obj, Member{Key: key, Value: val})
	}

	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	arr := Array{}
	for dec.More() {
		val, err := parseValue(dec)
		if err != nil {
			return nil, fmt.Errorf("canon: array[%d]: %w", len(arr), err)
		}
		arr = append(arr, val)
	}

	// Consume the closing ']'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

// ToValue converts a generic Go value (as produced by json.Unmarshal into
// any, or built up programmatically) into a Value. Maps lose their original
// key order - this is only safe to use for values that did not round-trip
// through a map[string]any (which has no order to preserve).
func ToValue(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case float64:
		return Number(formatFloatToken(t)), nil
	case []any:
		arr := make(Array, len(t))
		for i, elem := range t {
			ev, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, 0, len(t))
		for k, elem := range t {
			ev, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj = append(obj, Member{Key: k, Value: ev})
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("canon: unsupported Go type %T", v)
	}
}
