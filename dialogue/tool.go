package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/hrflow/types"
)

// DefaultDialogueSystemPromptTemplate may contain a single "%s" placeholder for the language.
const DefaultDialogueSystemPromptTemplate = `You are a friendly HR assistant. Rewrite the draft reply so it reads naturally.

Rules:
- Keep the meaning of the draft exactly: the decision, the workflow name and every missing field must stay.
- If fields are missing, ask for them casually; do not invent new requirements.
- If the decision is confirm, ask the user to answer yes or no.
- Never claim something was submitted unless the decision is success.
- Keep it short and avoid bullet points.
- Reply in %s.
`

type ToolBasedDialogueGenerator struct {
	Lang                 string
	systemPrompt         string
	systemPromptTemplate string
	chatModel            model.BaseChatModel
	draft                Generator
}

type dialogueGeneratorOptions struct {
	lang                 string
	systemPrompt         string
	systemPromptTemplate string
}

type GeneratorOption func(*dialogueGeneratorOptions)

// WithDialogueLang sets the language used by the default system prompt template.
func WithDialogueLang(lang string) GeneratorOption {
	return func(o *dialogueGeneratorOptions) {
		o.lang = lang
	}
}

// WithDialogueSystemPrompt overrides the system prompt used by ToolBasedDialogueGenerator.
func WithDialogueSystemPrompt(systemPrompt string) GeneratorOption {
	return func(o *dialogueGeneratorOptions) {
		o.systemPrompt = systemPrompt
	}
}

// WithDialogueSystemPromptTemplate overrides the system prompt template.
// If the template contains "%s", it will be formatted with the language.
func WithDialogueSystemPromptTemplate(systemPromptTemplate string) GeneratorOption {
	return func(o *dialogueGeneratorOptions) {
		o.systemPromptTemplate = systemPromptTemplate
	}
}

func NewToolBasedDialogueGenerator(chatModel model.BaseChatModel, opts ...GeneratorOption) *ToolBasedDialogueGenerator {
	options := dialogueGeneratorOptions{
		lang:                 "English",
		systemPromptTemplate: DefaultDialogueSystemPromptTemplate,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.lang == "" {
		options.lang = "English"
	}
	return &ToolBasedDialogueGenerator{
		Lang:                 options.lang,
		systemPrompt:         options.systemPrompt,
		systemPromptTemplate: options.systemPromptTemplate,
		chatModel:            chatModel,
		draft:                NewLocalDialogueGenerator(),
	}
}

func (g *ToolBasedDialogueGenerator) GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error) {
	messages, err := g.buildDialoguePrompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("build dialogue prompt: %w", err)
	}
	response, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("empty dialogue from model")
	}
	return strings.TrimSpace(response.Content), nil
}

func (g *ToolBasedDialogueGenerator) buildDialoguePrompt(ctx context.Context, req *types.ToolRequest) ([]*schema.Message, error) {
	draft, err := g.draft.GenerateDialogue(ctx, req)
	if err != nil {
		return nil, err
	}
	withDraft := *req
	withDraft.DraftMessage = draft
	message, err := types.FormatToolRequest(&withDraft)
	if err != nil {
		return nil, fmt.Errorf("convert to prompt message failed: %w", err)
	}

	systemPrompt := g.systemPrompt
	if systemPrompt == "" {
		tpl := g.systemPromptTemplate
		if tpl == "" {
			tpl = DefaultDialogueSystemPromptTemplate
		}
		if strings.Contains(tpl, "%s") {
			systemPrompt = fmt.Sprintf(tpl, g.Lang)
		} else {
			systemPrompt = tpl
		}
	}

	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(message),
	}, nil
}
