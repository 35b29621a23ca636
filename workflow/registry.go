package workflow

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/eino-contrib/jsonschema"
)

var defaultSpecs = map[Kind]Spec{
	Onboarding: {
		Kind:        Onboarding,
		Description: "A new employee is joining and needs to be set up.",
		Required:    []string{"employee_id", "first_name", "last_name", "email", "department", "role", "start_date", "manager_email"},
	},
	LeaveRequest: {
		Kind:        LeaveRequest,
		Description: "An employee asks for time off.",
		Required:    []string{"employee_id", "start_date", "end_date", "reason"},
	},
	PulseCheck: {
		Kind:          PulseCheck,
		Description:   "Team feedback or a mood survey response.",
		Required:      []string{},
		IdentityField: "email",
	},
}

// Registry holds the required-field schema of every workflow kind.
type Registry struct {
	specs map[Kind]Spec
}

// DefaultRegistry returns the built-in schemas.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

// NewRegistry builds a registry from the defaults with the given required-field overrides.
// Overrides can only target the closed set of kinds.
func NewRegistry(overrides map[string][]string) (*Registry, error) {
	specs := make(map[Kind]Spec, len(defaultSpecs))
	for k, s := range defaultSpecs {
		s.Required = slices.Clone(s.Required)
		specs[k] = s
	}
	for label, fields := range overrides {
		kind, err := ParseKind(label)
		if err != nil {
			return nil, fmt.Errorf("workflow override: %w", err)
		}
		s := specs[kind]
		s.Required = normalizeFields(fields)
		specs[kind] = s
	}
	return &Registry{specs: specs}, nil
}

func normalizeFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (r *Registry) Spec(kind Kind) (Spec, bool) {
	s, ok := r.specs[kind]
	return s, ok
}

// Kinds returns the registered kinds in presentation order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.specs))
	for _, k := range Kinds {
		if _, ok := r.specs[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Missing returns the required fields of kind that are not truthy in fields,
// in the schema's declared order.
func (r *Registry) Missing(kind Kind, fields map[string]any) []string {
	s, ok := r.specs[kind]
	if !ok {
		return nil
	}
	missing := make([]string, 0, len(s.Required))
	for _, f := range s.Required {
		if !Truthy(fields[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// JSONSchema renders the field schema of kind for prompts and the HTTP API.
func (r *Registry) JSONSchema(kind Kind) (string, error) {
	s, ok := r.specs[kind]
	if !ok {
		return "", fmt.Errorf("unknown workflow %q", kind)
	}
	schema := &jsonschema.Schema{
		Type:        "object",
		Title:       string(s.Kind),
		Description: s.Description,
		Required:    slices.Clone(s.Required),
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	return string(b), nil
}
