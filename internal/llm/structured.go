package llm

import (
	"context"
	"fmt"

	"github.com/civic-kit/grievance-service/internal/jsonx"
	"github.com/civic-kit/grievance-service/internal/observability"
	"github.com/civic-kit/grievance-service/internal/schema"
)

// Caller asks for JSON objects and validates them before handing them back.
type Caller struct {
	completer Completer
	schemas   *schema.Compiler
	metrics   *observability.Metrics
}

// NewCaller wraps a completer. A nil compiler skips schema validation.
func NewCaller(completer Completer, schemas *schema.Compiler, metrics *observability.Metrics) *Caller {
	if completer == nil {
		completer = Disabled{}
	}
	return &Caller{completer: completer, schemas: schemas, metrics: metrics}
}

// CallError separates a failed request from an unusable answer.
type CallError struct {
	Stage     string
	Transport bool
	Err       error
}

func (e *CallError) Error() string {
	kind := "invalid output"
	if e.Transport {
		kind = "request failed"
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Object completes req and returns the first JSON object in the answer,
// validated against schemaDoc when one is given.
func (c *Caller) Object(ctx context.Context, req Request, schemaDoc map[string]any) (map[string]any, error) {
	text, err := c.completer.Complete(ctx, req)
	if err != nil {
		c.metrics.RecordLLMRequest(req.Stage, "error")
		return nil, &CallError{Stage: req.Stage, Transport: true, Err: err}
	}

	obj, err := jsonx.ExtractObject(text)
	if err != nil {
		c.metrics.RecordLLMRequest(req.Stage, "unparseable")
		return nil, &CallError{Stage: req.Stage, Err: err}
	}
	if c.schemas != nil && schemaDoc != nil {
		if err := c.schemas.Validate(schemaDoc, obj); err != nil {
			c.metrics.RecordLLMRequest(req.Stage, "schema_invalid")
			return nil, &CallError{Stage: req.Stage, Err: err}
		}
	}
	c.metrics.RecordLLMRequest(req.Stage, "ok")
	return obj, nil
}
