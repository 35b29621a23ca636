package dialogue

import (
	"context"

	"github.com/tbxark/hrflow/types"
)

// Generator writes the reply for a turn whose outcome is already decided.
// It must not change the outcome; req.Status, req.Intent and req.Missing are final.
type Generator interface {
	GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error)
}
