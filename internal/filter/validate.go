package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mathfer/Bot-gemini-middleware/internal/types"
)

const schemaURL = "inmemory://webhook-event.json"

// FieldError is a single field-level diagnosis returned to the client.
type FieldError struct {
	Field   string `json:"campo"`
	Message string `json:"mensagem"`
}

// ValidationError is returned when a payload cannot become an Event.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

func bodyError(msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: "body", Message: msg}}}
}

// Validator turns raw request bodies into sanitized Events.
type Validator struct {
	schema *jsonschema.Schema
	chain  *Chain
}

// NewValidator compiles the event schema from types.Fields.
func NewValidator() (*Validator, error) {
	data, err := json.Marshal(eventSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal event schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema, chain: defaultChain}, nil
}

// eventSchema accepts both the canonical and the legacy key of every field.
// Unknown keys are allowed and kept in the raw payload.
func eventSchema() map[string]any {
	props := make(map[string]any, 2*len(types.Fields))
	for _, f := range types.Fields {
		prop := map[string]any{
			"type":      []string{"string", "null"},
			"maxLength": f.MaxLen,
		}
		props[f.Name] = prop
		props[f.Alias] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// Validate checks body against the field bounds, fills defaults and sanitizes
// every field. The second return value is the compacted raw payload as it
// will be persisted.
func (v *Validator) Validate(body []byte) (types.Event, json.RawMessage, error) {
	var ev types.Event

	if !json.Valid(body) {
		return ev, nil, bodyError("JSON inválido")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return ev, nil, bodyError("JSON inválido")
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return ev, nil, bodyError("o corpo deve ser um objeto JSON")
	}

	if err := v.schema.Validate(obj); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return ev, nil, &ValidationError{Fields: fieldErrors(verr)}
		}
		return ev, nil, fmt.Errorf("validate payload: %w", err)
	}

	for _, f := range types.Fields {
		val, ok := obj[f.Name].(string)
		if !ok {
			val, _ = obj[f.Alias].(string)
		}
		ev.Set(f.Name, v.chain.Apply(val))
	}
	if ev.RequesterID == "" {
		ev.RequesterID = types.DefaultRequester
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return ev, nil, bodyError("JSON inválido")
	}
	return ev, compact.Bytes(), nil
}

func fieldErrors(verr *jsonschema.ValidationError) []FieldError {
	var out []FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				field = "body"
			}
			out = append(out, FieldError{Field: field, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
