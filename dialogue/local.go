package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tbxark/hrflow/types"
	"github.com/tbxark/hrflow/workflow"
)

// LocalDialogueGenerator renders fixed English templates.
type LocalDialogueGenerator struct{}

func NewLocalDialogueGenerator() *LocalDialogueGenerator {
	return &LocalDialogueGenerator{}
}

func (g *LocalDialogueGenerator) GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error) {
	switch req.Status {
	case types.StatusSuccess:
		return fmt.Sprintf("Your `%s` workflow has been submitted successfully!", req.Intent), nil
	case types.StatusCancelled:
		return "Okay! I've cancelled the request.", nil
	case types.StatusWaiting:
		return "I'm still waiting for a *yes* or *no* to proceed.", nil
	case types.StatusConfirm:
		return fmt.Sprintf("Got everything for `%s`. Shall I go ahead and submit it?", req.Intent), nil
	case types.StatusIncomplete:
		names := make([]string, 0, len(req.Missing))
		for _, f := range req.Missing {
			names = append(names, f.Name)
		}
		if errors.Is(req.Cause, types.ErrSessionMisuse) {
			return fmt.Sprintf("There is nothing to confirm yet. I still need: %s", strings.Join(names, ", ")), nil
		}
		return fmt.Sprintf("Thanks! I still need: %s", strings.Join(names, ", ")), nil
	case types.StatusError:
		if req.Phase == types.PhaseConfirming {
			return "Submission failed.", nil
		}
		return "Could not classify intent", nil
	case types.StatusNeutral:
		if errors.Is(req.Cause, types.ErrSessionMisuse) {
			return fmt.Sprintf("There is nothing waiting for confirmation. I can help with %s. What would you like to do?", listKinds(req.Kinds)), nil
		}
		return fmt.Sprintf("Hi again! I can help with %s. What would you like to do?", listKinds(req.Kinds)), nil
	default:
		return "", fmt.Errorf("unknown status %q", req.Status)
	}
}

func listKinds(kinds []workflow.Kind) string {
	if len(kinds) == 0 {
		kinds = workflow.Kinds
	}
	titles := make([]string, 0, len(kinds))
	for _, k := range kinds {
		titles = append(titles, k.Title())
	}
	switch len(titles) {
	case 1:
		return titles[0]
	case 2:
		return titles[0] + " or " + titles[1]
	default:
		return strings.Join(titles[:len(titles)-1], ", ") + ", or " + titles[len(titles)-1]
	}
}

type FailbackDialogueGenerator struct {
	generators []Generator
}

func NewFailbackDialogueGenerator(generators ...Generator) *FailbackDialogueGenerator {
	return &FailbackDialogueGenerator{generators: generators}
}

func (g *FailbackDialogueGenerator) GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error) {
	lastErr := errors.New("no dialogue generator configured")
	for _, generator := range g.generators {
		message, err := generator.GenerateDialogue(ctx, req)
		if err == nil && message != "" {
			return message, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return "", fmt.Errorf("all dialogue generators failed: %w", lastErr)
}
