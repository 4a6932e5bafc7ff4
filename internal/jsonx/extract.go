// Package jsonx pulls a JSON object out of free-form model output.
package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoObject means the text contains no opening brace.
	ErrNoObject = errors.New("no json object found")
	// ErrIncomplete means an object was opened but never balanced.
	ErrIncomplete = errors.New("incomplete json object")
	// ErrInvalid means a balanced span was found but does not decode.
	ErrInvalid = errors.New("invalid json object")
)

// ExtractObject returns the first balanced {...} span in text decoded as a map.
// Surrounding prose and code fences are ignored; braces inside string
// literals do not count toward the balance.
func ExtractObject(text string) (map[string]any, error) {
	span, err := FindObject(text)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return out, nil
}

// FindObject returns the raw text of the first balanced object.
func FindObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrIncomplete
}
