package structured

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

var ErrNoToolCall = errors.New("no tool call in model response")

type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

// Chain asks the model for exactly one call of a single tool and decodes its
// arguments into TOutput.
type Chain[TInput, TOutput any] struct {
	PromptBuilder PromptBuilder[TInput]
	ChatModel     model.ToolCallingChatModel
	ToolInfo      *schema.ToolInfo
}

func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolName string,
	toolDesc string,
) (*Chain[TInput, TOutput], error) {
	toolInfo, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	return NewChainWithToolInfo[TInput, TOutput](chatModel, promptBuilder, toolInfo), nil
}

// NewChainWithToolInfo is NewChain for tools whose parameters are only known at runtime.
func NewChainWithToolInfo[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolInfo *schema.ToolInfo,
) *Chain[TInput, TOutput] {
	return &Chain[TInput, TOutput]{
		PromptBuilder: promptBuilder,
		ChatModel:     chatModel,
		ToolInfo:      toolInfo,
	}
}

func (s *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput) (*TOutput, error) {
	messages, err := s.PromptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}

	response, err := s.ChatModel.Generate(ctx, messages,
		model.WithTools([]*schema.ToolInfo{s.ToolInfo}),
		model.WithToolChoice(schema.ToolChoiceForced, s.ToolInfo.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("%w: empty response", ErrNoToolCall)
	}

	args, ok := toolArguments(response, s.ToolInfo.Name)
	if !ok {
		// Some deployments ignore tool_choice and answer with the JSON inline.
		content := StripCodeFence(response.Content)
		if !strings.HasPrefix(content, "{") {
			return nil, fmt.Errorf("%w: %s", ErrNoToolCall, response.Content)
		}
		args = content
	}

	var result TOutput
	if err := sonic.UnmarshalString(args, &result); err != nil {
		return nil, fmt.Errorf("parse ToolCall arguments failed: %w", err)
	}
	return &result, nil
}

func (s *Chain[TInput, TOutput]) GetToolInfo() *schema.ToolInfo {
	return s.ToolInfo
}

func toolArguments(msg *schema.Message, name string) (string, bool) {
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == name {
			return tc.Function.Arguments, true
		}
	}
	if len(msg.ToolCalls) == 1 && msg.ToolCalls[0].Function.Name == "" {
		return msg.ToolCalls[0].Function.Arguments, true
	}
	return "", false
}

var codeFence = regexp.MustCompile("^```(?:json)?\\s*|\\s*```$")

// StripCodeFence removes a leading ``` or ```json fence and a trailing ``` fence.
func StripCodeFence(content string) string {
	return codeFence.ReplaceAllString(strings.TrimSpace(content), "")
}
