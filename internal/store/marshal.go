package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

// marshalData converts document data to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so json_extract sees one spelling per value.
func marshalData(data value.Object) (string, error) {
	if data == nil {
		data = value.Object{}
	}
	out, err := value.MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(out), nil
}

// unmarshalData parses canonical JSON TEXT to an Object.
// Large integers keep their precision (value.Parse decodes via json.Number).
func unmarshalData(data string) (value.Object, error) {
	if data == "" || data == "{}" {
		return value.Object{}, nil
	}
	obj, err := value.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return obj, nil
}

func marshalHookFailures(failures []model.HookFailure) (string, error) {
	if len(failures) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(failures)
	if err != nil {
		return "", fmt.Errorf("marshal hook failures: %w", err)
	}
	return string(out), nil
}

func unmarshalHookFailures(data string) ([]model.HookFailure, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var failures []model.HookFailure
	if err := json.Unmarshal([]byte(data), &failures); err != nil {
		return nil, fmt.Errorf("unmarshal hook failures: %w", err)
	}
	return failures, nil
}

// marshalDefinition stores a definition struct as canonical JSON.
// Keys in drop are removed first (store-managed columns).
func marshalDefinition(v any, drop ...string) (string, value.Object, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("marshal definition: %w", err)
	}
	obj, err := value.ParseObject(raw)
	if err != nil {
		return "", nil, fmt.Errorf("marshal definition: %w", err)
	}
	for _, k := range drop {
		delete(obj, k)
	}
	out, err := value.MarshalCanonical(obj)
	if err != nil {
		return "", nil, fmt.Errorf("marshal definition: %w", err)
	}
	return string(out), obj, nil
}
