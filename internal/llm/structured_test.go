package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-kit/grievance-service/internal/jsonx"
	"github.com/civic-kit/grievance-service/internal/schema"
)

type stubCompleter struct {
	text string
	err  error
	got  Request
}

func (s *stubCompleter) Complete(_ context.Context, req Request) (string, error) {
	s.got = req
	return s.text, s.err
}

var objectSchema = map[string]any{
	"type":     "object",
	"required": []string{"urgency"},
	"properties": map[string]any{
		"urgency": map[string]any{"type": "string"},
	},
}

func TestCallerObject(t *testing.T) {
	stub := &stubCompleter{text: "Result:\n{\"urgency\": \"high\"}"}
	caller := NewCaller(stub, schema.NewCompiler(4, time.Minute), nil)

	obj, err := caller.Object(context.Background(), Request{Stage: StageClassification}, objectSchema)
	require.NoError(t, err)
	assert.Equal(t, "high", obj["urgency"])
	assert.Equal(t, StageClassification, stub.got.Stage)
}

func TestCallerTransportError(t *testing.T) {
	caller := NewCaller(&stubCompleter{err: errors.New("timeout")}, nil, nil)
	_, err := caller.Object(context.Background(), Request{Stage: StageSLA}, nil)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.True(t, callErr.Transport)
	assert.Equal(t, StageSLA, callErr.Stage)
}

func TestCallerInvalidOutput(t *testing.T) {
	caller := NewCaller(&stubCompleter{text: "I cannot help with that"}, nil, nil)
	_, err := caller.Object(context.Background(), Request{Stage: StagePolicy}, nil)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.False(t, callErr.Transport)
	assert.ErrorIs(t, err, jsonx.ErrNoObject)
}

func TestCallerSchemaRejects(t *testing.T) {
	caller := NewCaller(&stubCompleter{text: `{"category": "other"}`}, schema.NewCompiler(4, time.Minute), nil)
	_, err := caller.Object(context.Background(), Request{Stage: StageClassification}, objectSchema)
	assert.Error(t, err)
}

func TestDisabledCompleter(t *testing.T) {
	caller := NewCaller(nil, nil, nil)
	_, err := caller.Object(context.Background(), Request{Stage: StageSentiment}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
