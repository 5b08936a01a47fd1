package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator holds a compiled schema for repeated validation.
type Validator struct {
	id       string
	compiled *jsonschema.Schema
}

// Compile compiles a JSON schema payload under the given id.
func Compile(id string, schema []byte) (*Validator, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	resourceID := schemaID(id)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{id: id, compiled: compiled}, nil
}

// MustCompile is Compile for embedded schemas that are known to be valid.
func MustCompile(id string, schema []byte) *Validator {
	v, err := Compile(id, schema)
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", id, err))
	}
	return v
}

// Validate checks a value. Anything other than raw JSON is round-tripped
// through encoding/json so struct tags and YAML-decoded ints line up with
// what the schema expects.
func (v *Validator) Validate(value any) error {
	if v == nil || v.compiled == nil {
		return fmt.Errorf("schema not compiled")
	}
	payload, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("normalize payload: %w", err)
	}
	if err := v.compiled.Validate(payload); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateSchema validates a value against a JSON schema payload.
func ValidateSchema(id string, schema []byte, value any) error {
	v, err := Compile(id, schema)
	if err != nil {
		return err
	}
	return v.Validate(value)
}

// Lazy compiles an embedded schema on first use.
type Lazy struct {
	ID     string
	Source func() ([]byte, error)

	once sync.Once
	v    *Validator
	err  error
}

// Validate compiles the schema once and validates value against it.
func (l *Lazy) Validate(value any) error {
	l.once.Do(func() {
		if l.Source == nil {
			l.err = fmt.Errorf("schema %s has no source", l.ID)
			return
		}
		data, err := l.Source()
		if err != nil {
			l.err = fmt.Errorf("load schema %s: %w", l.ID, err)
			return
		}
		l.v, l.err = Compile(l.ID, data)
	})
	if l.err != nil {
		return l.err
	}
	return l.v.Validate(value)
}

func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return decode(v)
	case []byte:
		return decode(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return decode(data)
	}
}

func decode(data []byte) (any, error) {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func schemaID(id string) string {
	if id == "" {
		id = "schema"
	}
	return "inmemory://" + id
}
