package decode

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Options tunes Decode.
type Options struct {
	// WeaklyTypedInput allows "123" -> int and similar; off for event payloads.
	WeaklyTypedInput bool
	// ErrorUnused rejects fields the target lacks.
	ErrorUnused bool
}

// Strict is used for inbound realtime payloads: unknown fields are rejected.
func Strict() Options {
	return Options{ErrorUnused: true}
}

// Decode maps a generic JSON value (map[string]any, []any, string, float64...) onto T.
// Struct fields are matched by their `json` tag.
func Decode[T any](in any, opts Options) (T, error) {
	var out T
	if in == nil {
		return out, fmt.Errorf("payload is empty")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		ErrorUnused:      opts.ErrorUnused,
		WeaklyTypedInput: opts.WeaklyTypedInput,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			integralFloatHook(),
		),
	})
	if err != nil {
		return out, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// DecodeJSON parses raw and decodes it onto T.
func DecodeJSON[T any](raw json.RawMessage, opts Options) (T, error) {
	var v any
	if len(raw) == 0 {
		var zero T
		return zero, fmt.Errorf("payload is empty")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("parse payload: %w", err)
	}
	return Decode[T](v, opts)
}

// integralFloatHook rejects fractional JSON numbers bound for integer fields
// instead of silently truncating them.
func integralFloatHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.Float64 {
			return data, nil
		}
		switch to.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f := data.(float64)
			if f != float64(int64(f)) {
				return nil, fmt.Errorf("expected integer, got %v", f)
			}
			return int64(f), nil
		}
		return data, nil
	}
}
