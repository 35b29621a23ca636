package extract

import (
	"context"

	"github.com/tbxark/hrflow/workflow"
)

type Request struct {
	Intent  workflow.Kind
	Message string
	// Fields lists the field names the extractor should look for, in schema order.
	Fields      []string
	Known       map[string]any
	FieldSchema string
}

// Extractor returns the field values it could find in a message. Values may
// be empty or wrong; the caller decides what to keep.
type Extractor interface {
	Extract(ctx context.Context, req *Request) (map[string]any, error)
}

type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

const OperationAdd = "add"
