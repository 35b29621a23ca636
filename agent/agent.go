package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/hrflow/types"
)

var _ adk.Agent = (*Agent)(nil)

// Agent exposes a Flow to the eino adk runner. The user is taken from the
// context (see WithUser) and the last input message is the turn text. The
// tagged result is attached as the event's customized output.
type Agent struct {
	name        string
	description string
	flow        *Flow
}

func NewAgent(name, description string, flow *Flow) *Agent {
	return &Agent{
		name:        name,
		description: description,
		flow:        flow,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			e := recover()
			if e != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("recover from panic: %v", e),
				})
			}
			gen.Close()
		}()
		user, ok := UserFromContext(ctx)
		if !ok {
			gen.Send(&adk.AgentEvent{Err: errors.New("no user in context")})
			return
		}
		if input == nil || len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{Err: errors.New("no messages in input")})
			return
		}
		last := input.Messages[len(input.Messages)-1]
		if last == nil {
			gen.Send(&adk.AgentEvent{Err: errors.New("nil input message")})
			return
		}
		result, err := a.flow.Handle(ctx, user, last.Content)
		if err != nil {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("flow handle failed: %w", err),
			})
			return
		}
		gen.Send(&adk.AgentEvent{
			AgentName: a.name,
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					IsStreaming: false,
					Message:     schema.AssistantMessage(result.Message, nil),
					Role:        schema.Assistant,
				},
				CustomizedOutput: result,
			},
		})
	}()
	return iter
}

// ResultFromEvent returns the turn result carried by an event produced by Agent.
func ResultFromEvent(event *adk.AgentEvent) (*types.Result, bool) {
	if event == nil || event.Output == nil {
		return nil, false
	}
	result, ok := event.Output.CustomizedOutput.(*types.Result)
	return result, ok && result != nil
}
