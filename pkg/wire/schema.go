package wire

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// EnvelopeSchema is the JSON schema of a text envelope frame.
const EnvelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["from", "to", "content", "type"],
  "properties": {
    "from":    {"type": "string", "minLength": 1},
    "to":      {"type": "string", "minLength": 1},
    "subject": {"type": "string"},
    "content": {"type": "string"},
    "type":    {"type": "string", "minLength": 1}
  }
}`

// SchemaValidator checks inbound JSON frames against a JSON schema before
// they are decoded. Deployments use it to tighten the envelope contract,
// for example restricting "type" to an enum.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles the given schema document.
func NewSchemaValidator(schema []byte) (*SchemaValidator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &SchemaValidator{schema: s}, nil
}

// LoadSchemaValidator reads and compiles a schema file.
func LoadSchemaValidator(path string) (*SchemaValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return NewSchemaValidator(data)
}

// Validate returns a *DecodingError when frame does not satisfy the schema.
func (v *SchemaValidator) Validate(frame []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(frame))
	if err != nil {
		return newDecodingError(frame, "", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		details = append(details, re.String())
	}
	return newDecodingError(frame, "", fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(details, "; ")))
}
