package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObjectFromProse(t *testing.T) {
	text := "Sure! Here is the result:\n```json\n{\"urgency\": \"high\", \"nested\": {\"a\": 1}}\n```\nLet me know."
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	assert.Equal(t, "high", obj["urgency"])
	nested, ok := obj["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("1"), nested["a"])
}

func TestExtractObjectIgnoresBracesInStrings(t *testing.T) {
	text := `{"reasoning": "contains } and { and \" quote", "ok": true} trailing {`
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	assert.Equal(t, true, obj["ok"])
}

func TestExtractObjectFirstOnly(t *testing.T) {
	obj, err := ExtractObject(`{"a": "first"} {"a": "second"}`)
	require.NoError(t, err)
	assert.Equal(t, "first", obj["a"])
}

func TestExtractObjectErrors(t *testing.T) {
	_, err := ExtractObject("no json here")
	assert.ErrorIs(t, err, ErrNoObject)

	_, err = ExtractObject(`{"a": {"b": 1}`)
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = ExtractObject(`{a: 1}`)
	assert.ErrorIs(t, err, ErrInvalid)
}
