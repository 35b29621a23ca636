package types

import (
	"errors"

	"github.com/tbxark/hrflow/workflow"
)

type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseConfirming Phase = "confirming"
)

type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
	StatusWaiting    Status = "waiting"
	StatusNeutral    Status = "neutral"
	StatusConfirm    Status = "confirm"
	StatusIncomplete Status = "incomplete"
)

var (
	ErrClassification = errors.New("classification failed")
	ErrExtraction     = errors.New("extraction failed")
	ErrSubmission     = errors.New("submission failed")
	ErrSessionMisuse  = errors.New("no request is waiting for confirmation")
)

type FieldInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Result is the tagged decision of one dialogue turn.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Intent  workflow.Kind  `json:"intent,omitempty"`
	Missing []string       `json:"missing,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Details string         `json:"details,omitempty"`
	TurnID  string         `json:"turn_id,omitempty"`

	Err error `json:"-"`
}

// Terminal reports whether the turn ended the user's session.
func (r *Result) Terminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusCancelled
}

// ToolRequest is the context handed to every model-backed collaborator.
type ToolRequest struct {
	Message      string
	Intent       workflow.Kind
	Kinds        []workflow.Kind
	Fields       map[string]any
	FieldSchema  string
	Phase        Phase
	Missing      []FieldInfo
	Status       Status
	Details      string
	Cause        error
	DraftMessage string
}
