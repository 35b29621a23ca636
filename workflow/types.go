package workflow

import (
	"fmt"
	"strings"
)

type Kind string

const (
	Onboarding   Kind = "onboarding"
	LeaveRequest Kind = "leave_request"
	PulseCheck   Kind = "pulse_check"
)

// Kinds lists the closed set of workflow kinds in presentation order.
var Kinds = []Kind{Onboarding, LeaveRequest, PulseCheck}

// ParseKind normalizes an oracle label and checks it against the closed set.
func ParseKind(label string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(label)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid intent: %q", label)
}

func (k Kind) Valid() bool {
	parsed, err := ParseKind(string(k))
	return err == nil && parsed == k
}

// Title is the human form used in prompts and greetings.
func (k Kind) Title() string {
	switch k {
	case Onboarding:
		return "onboarding"
	case LeaveRequest:
		return "leave requests"
	case PulseCheck:
		return "pulse checks"
	default:
		return string(k)
	}
}

// Spec describes what a workflow needs before it can be submitted.
type Spec struct {
	Kind        Kind     `json:"kind"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required"`
	// IdentityField is overwritten with the caller identity after every merge.
	IdentityField string `json:"identity_field,omitempty"`
}

// Fields returns the required fields plus the identity field, without duplicates.
func (s Spec) Fields() []string {
	out := make([]string, 0, len(s.Required)+1)
	out = append(out, s.Required...)
	if s.IdentityField != "" && !contains(out, s.IdentityField) {
		out = append(out, s.IdentityField)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
