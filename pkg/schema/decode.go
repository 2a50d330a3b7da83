package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Decode converts a JSON-like dictionary into out using json tags.
// Numeric slices decoded from JSON arrive as []any and are converted by hooks.
func Decode(in map[string]any, out any) error {
	config := &mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(float32SliceHook, stringSliceHook),
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(in); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

// ToMap converts v into a JSON-like dictionary, v must encode to a JSON object.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}
	return out, nil
}

// float32SliceHook 处理 []any/[]float64 -> []float32 转换
func float32SliceHook(_, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf([]float32{}) {
		return data, nil
	}

	switch v := data.(type) {
	case []float32:
		return v, nil
	case []float64:
		result := make([]float32, len(v))
		for i, f := range v {
			result[i] = float32(f)
		}
		return result, nil
	case []any:
		result := make([]float32, len(v))
		for i, item := range v {
			if f, ok := item.(float64); ok {
				result[i] = float32(f)
			}
		}
		return result, nil
	default:
		return data, nil
	}
}

// stringSliceHook 处理 []any -> []string 转换
func stringSliceHook(_, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf([]string{}) {
		return data, nil
	}

	if strSlice, ok := data.([]string); ok {
		return strSlice, nil
	}

	slice, ok := data.([]any)
	if !ok {
		return data, nil
	}

	result := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result, nil
}
