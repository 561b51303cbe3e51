package roster

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/staffdir/pkg/models"
)

//go:embed person.schema.json
var personSchema []byte

var fieldMessages = map[string]string{
	"firstName":  "First name must be at least 2 characters",
	"lastName":   "Last name must be at least 2 characters",
	"position":   "Position is required",
	"department": "Department is required",
	"email":      "Invalid email address",
	"phone":      "Phone must be 09XXXXXXXXX or +639XXXXXXXXX",
}

// Validator checks person payloads against the embedded JSON schema and the
// current label lists.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(personSchema, rs); err != nil {
		return nil, fmt.Errorf("compile person schema: %w", err)
	}
	return &Validator{schema: rs}, nil
}

// Validate returns a *ValidationError describing every bad field, or nil.
// Any other error means the check itself could not run.
func (v *Validator) Validate(ctx context.Context, p models.Person, positions, departments []models.Label) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode person: %w", err)
	}
	verrs, err := v.schema.ValidateBytes(ctx, b)
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}

	ve := &ValidationError{}
	for _, ke := range verrs {
		field := keyErrorField(ke)
		msg, ok := fieldMessages[field]
		if !ok {
			msg = ke.Message
		}
		ve.add(field, msg)
	}

	if _, bad := ve.Fields["position"]; !bad && !hasLabel(positions, p.Position) {
		ve.add("position", fmt.Sprintf("Unknown position %q", p.Position))
	}
	if _, bad := ve.Fields["department"]; !bad && !hasLabel(departments, p.Department) {
		ve.add("department", fmt.Sprintf("Unknown department %q", p.Department))
	}

	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// keyErrorField maps a schema error to the JSON field it is about. Errors from
// "required" are reported on the parent object with the key in the message.
func keyErrorField(ke jsonschema.KeyError) string {
	path := strings.TrimPrefix(ke.PropertyPath, "/")
	if path != "" {
		return strings.SplitN(path, "/", 2)[0]
	}
	if i := strings.IndexByte(ke.Message, '"'); i >= 0 {
		if j := strings.IndexByte(ke.Message[i+1:], '"'); j > 0 {
			return ke.Message[i+1 : i+1+j]
		}
	}
	return "person"
}

func hasLabel(labels []models.Label, name string) bool {
	for _, l := range labels {
		if l.Name == name {
			return true
		}
	}
	return false
}
