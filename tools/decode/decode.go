// Package decode turns loosely-typed event payloads (maps unmarshalled from
// JSON frames) into concrete structs. Field names resolve through `json`
// tags, and scalar types are coerced weakly so "1"/1.0/1 all satisfy an int
// field.
package decode

import (
	"encoding/json"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// FromMap decodes m into a fresh T.
func FromMap[T any](m map[string]any) (*T, error) {
	if m == nil {
		return nil, errors.New("payload is nil")
	}
	var out T
	cfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook:       floatToIntHook(),
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "new decoder")
	}
	if err := dec.Decode(m); err != nil {
		return nil, errors.WithMessage(err, "decode payload")
	}
	return &out, nil
}

// FromJSON decodes a raw JSON object into T via the same weak rules.
func FromJSON[T any](raw []byte) (*T, error) {
	if len(raw) == 0 {
		return nil, errors.New("payload is empty")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.WithMessage(err, "unmarshal payload")
	}
	return FromMap[T](m)
}

// floatToIntHook converts JSON numbers (always float64) to integer targets.
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}
