package intent

import (
	"context"

	"github.com/tbxark/hrflow/workflow"
)

// Classifier maps a free-text message to one of the workflow kinds.
// A label outside the closed set is an error.
type Classifier interface {
	Classify(ctx context.Context, message string) (workflow.Kind, error)
}
