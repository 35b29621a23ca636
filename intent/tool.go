package intent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/hrflow/structured"
	"github.com/tbxark/hrflow/types"
	"github.com/tbxark/hrflow/workflow"
)

const (
	classifyToolName        = "classify_hr_intent"
	classifyToolDescription = "Classify an HR message into exactly one supported workflow."
)

// DefaultClassifySystemPromptTemplate may contain a single "%s" placeholder for the tool name.
const DefaultClassifySystemPromptTemplate = `Classify this HR message into one of the following only: onboarding, leave_request, pulse_check.

Examples:
I want to take Monday off => leave_request
We have a new developer joining => onboarding
Here's the team's monthly feedback => pulse_check

Call the '%s' tool with the result.`

type classifyOutput struct {
	Intent string `json:"intent" jsonschema:"required,enum=onboarding,enum=leave_request,enum=pulse_check,description=The HR workflow the message belongs to"`
}

type classifierOptions struct {
	systemPromptTemplate string
	kinds                []workflow.Kind
}

type ClassifierOption func(*classifierOptions)

func WithClassifySystemPromptTemplate(tpl string) ClassifierOption {
	return func(o *classifierOptions) {
		o.systemPromptTemplate = tpl
	}
}

// WithKinds limits the workflows listed in the prompt.
func WithKinds(kinds ...workflow.Kind) ClassifierOption {
	return func(o *classifierOptions) {
		o.kinds = kinds
	}
}

type ToolBasedClassifier struct {
	chain *structured.Chain[string, classifyOutput]
}

func NewToolBasedClassifier(chatModel model.ToolCallingChatModel, opts ...ClassifierOption) (*ToolBasedClassifier, error) {
	options := classifierOptions{
		systemPromptTemplate: DefaultClassifySystemPromptTemplate,
		kinds:                workflow.Kinds,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	systemPrompt := fmt.Sprintf(options.systemPromptTemplate, classifyToolName)
	kinds := options.kinds
	chain, err := structured.NewChain[string, classifyOutput](
		chatModel,
		func(ctx context.Context, message string) ([]*schema.Message, error) {
			prompt, err := types.FormatToolRequest(&types.ToolRequest{Message: message, Kinds: kinds})
			if err != nil {
				return nil, fmt.Errorf("convert to prompt message failed: %w", err)
			}
			return []*schema.Message{
				schema.SystemMessage(systemPrompt),
				schema.UserMessage(prompt),
			}, nil
		},
		classifyToolName,
		classifyToolDescription,
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedClassifier{chain: chain}, nil
}

func (c *ToolBasedClassifier) Classify(ctx context.Context, message string) (workflow.Kind, error) {
	result, err := c.chain.Invoke(ctx, message)
	if err != nil {
		return "", err
	}
	if result == nil || result.Intent == "" {
		return "", fmt.Errorf("empty intent returned by %s", classifyToolName)
	}
	return workflow.ParseKind(result.Intent)
}
