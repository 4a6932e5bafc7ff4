// Package schema validates structured model output against JSON schemas.
package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// Compiler compiles schemas once and keeps them in an expiring LRU.
type Compiler struct {
	cache *expirable.LRU[string, *js.Schema]
}

// NewCompiler returns a compiler caching up to maxSize schemas for ttl.
func NewCompiler(maxSize int, ttl time.Duration) *Compiler {
	if maxSize <= 0 {
		maxSize = 64
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Compiler{cache: expirable.NewLRU[string, *js.Schema](maxSize, nil, ttl)}
}

// Validate checks value against the schema document.
func (c *Compiler) Validate(schemaDoc map[string]any, value map[string]any) error {
	compiled, err := c.compile(schemaDoc)
	if err != nil {
		return err
	}

	// round-trip so json.Number and typed slices become plain JSON values
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func (c *Compiler) compile(schemaDoc map[string]any) (*js.Schema, error) {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])
	if compiled, ok := c.cache.Get(key); ok {
		return compiled, nil
	}

	// a fresh compiler per schema keeps resource URLs from colliding
	compiler := js.NewCompiler()
	url := "mem://schema/" + key[:16] + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	c.cache.Add(key, compiled)
	return compiled, nil
}
