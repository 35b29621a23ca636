// Package fakemodel provides a scripted eino chat model for tests.
package fakemodel

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// Responder produces the model reply for one Generate call.
type Responder func(ctx context.Context, input []*schema.Message) (*schema.Message, error)

type ChatModel struct {
	mu      sync.Mutex
	respond Responder
	calls   [][]*schema.Message
}

func New(respond Responder) *ChatModel {
	return &ChatModel{respond: respond}
}

// ToolCall returns a model that always answers with a single call of tool.
func ToolCall(tool, arguments string) *ChatModel {
	return New(func(context.Context, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("", []schema.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: schema.FunctionCall{Name: tool, Arguments: arguments},
		}}), nil
	})
}

// Text returns a model that always answers with content.
func Text(content string) *ChatModel {
	return New(func(context.Context, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(content, nil), nil
	})
}

// Failing returns a model whose calls all fail with err.
func Failing(err error) *ChatModel {
	return New(func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, err
	})
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()
	return m.respond(ctx, input)
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// Calls returns the number of Generate calls so far.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastInput returns the messages of the most recent call.
func (m *ChatModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}
