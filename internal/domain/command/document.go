package command

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode copies a document into a typed response struct. Struct fields match
// document keys case-insensitively; RFC 3339 strings decode into time.Time.
func Decode(call string, doc Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(doc); err != nil {
		return &ParseError{Call: call, Key: fmt.Sprintf("%T", out), Err: err}
	}
	return nil
}

// Field returns doc[key], failing with a ParseError when doc is not an object
// or the key is absent.
func Field(call string, doc Document, key string) (Document, error) {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, &ParseError{Call: call, Key: key}
	}
	v, ok := m[key]
	if !ok {
		return nil, &ParseError{Call: call, Key: key}
	}
	return v, nil
}

// List returns doc[key] as a list.
func List(call string, doc Document, key string) ([]any, error) {
	v, err := Field(call, doc, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &ParseError{Call: call, Key: key}
	}
	return items, nil
}

// Strings interprets doc as a list of strings, the shape produced by a
// projection query such as Stacks[].StackName. A nil document is empty.
func Strings(call string, doc Document) ([]string, error) {
	if doc == nil {
		return nil, nil
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, &ParseError{Call: call, Key: "[]"}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &ParseError{Call: call, Key: "[]"}
		}
		out = append(out, s)
	}
	return out, nil
}
