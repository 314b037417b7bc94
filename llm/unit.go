package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/hupe1980/fanflow/core"
)

// Unit is the capability surface every generation unit exposes: raw, text
// and structured generation from a normalized message plus per-call params.
type Unit interface {
	// Name identifies the unit in logs and error attribution.
	Name() string

	// Generate produces the raw content response for the message.
	Generate(ctx context.Context, msg core.Message, params core.GenerateParams) ([]core.Content, error)

	// GenerateText produces the string representation of the response.
	GenerateText(ctx context.Context, msg core.Message, params core.GenerateParams) (string, error)

	// GenerateStructured decodes the response into the value pointed to by
	// out, which must be a non-nil pointer (json.Unmarshal semantics).
	GenerateStructured(ctx context.Context, msg core.Message, params core.GenerateParams, out any) error
}

// Func adapts a plain Go function to the Unit interface. The function
// receives the message and its return value stands in for a generation
// result; string and structured coercion follow the value's shape, so
// conforming to a requested structure is the function author's
// responsibility.
type Func struct {
	name string
	fn   func(ctx context.Context, msg core.Message) (any, error)
}

// NewFunc wraps fn as a generation unit.
func NewFunc(name string, fn func(ctx context.Context, msg core.Message) (any, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Unit.
func (f *Func) Name() string { return f.name }

// Generate implements Unit; the returned value is normalized into content form.
func (f *Func) Generate(ctx context.Context, msg core.Message, _ core.GenerateParams) ([]core.Content, error) {
	v, err := f.fn(ctx, msg)
	if err != nil {
		return nil, err
	}
	return core.NormalizeOutput(v), nil
}

// GenerateText implements Unit; non-string return values are coerced to
// their textual representation.
func (f *Func) GenerateText(ctx context.Context, msg core.Message, _ core.GenerateParams) (string, error) {
	v, err := f.fn(ctx, msg)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return core.ContentsText(core.NormalizeOutput(v)), nil
}

// GenerateStructured implements Unit; the function's return value is decoded
// into out without any schema validation.
func (f *Func) GenerateStructured(ctx context.Context, msg core.Message, _ core.GenerateParams, out any) error {
	v, err := f.fn(ctx, msg)
	if err != nil {
		return err
	}
	return DecodeValue(v, out)
}

// DecodeValue assigns or decodes an arbitrary value into the pointer out.
// Directly assignable values are set via reflection; JSON strings and any
// other value go through a JSON round trip. Shape mismatches surface as
// decoding errors to the caller, they are not validated up front.
func DecodeValue(v any, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("out must be a non-nil pointer, got %T", out)
	}

	target := rv.Elem()
	if v != nil {
		vv := reflect.ValueOf(v)
		if vv.Type().AssignableTo(target.Type()) {
			target.Set(vv)
			return nil
		}
	}

	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(ExtractJSON(s)), out); err != nil {
			return fmt.Errorf("decode string result into %T: %w", out, err)
		}
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T for decoding: %w", v, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %T into %T: %w", v, out, err)
	}
	return nil
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// response, returning the innermost JSON object or array when one is found.
func ExtractJSON(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return s
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
