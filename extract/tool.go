package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/hrflow/structured"
	"github.com/tbxark/hrflow/types"
)

const (
	extractToolName        = "extract_hr_fields"
	extractToolDescription = "Extract structured HR workflow fields from the user message. Only include values the user stated explicitly."
)

// DefaultExtractSystemPromptTemplate takes the workflow name and the tool name.
const DefaultExtractSystemPromptTemplate = `You are extracting structured fields from an HR message. Intent: %s.
Only use information the user stated. Leave a field empty when it is not mentioned; never guess.
Dates should be written as YYYY-MM-DD when the user gives a concrete day.
Call the '%s' tool with the result.`

type ToolBasedExtractor struct {
	chatModel            model.ToolCallingChatModel
	systemPromptTemplate string
}

func NewToolBasedExtractor(chatModel model.ToolCallingChatModel) *ToolBasedExtractor {
	return &ToolBasedExtractor{
		chatModel:            chatModel,
		systemPromptTemplate: DefaultExtractSystemPromptTemplate,
	}
}

func (e *ToolBasedExtractor) Extract(ctx context.Context, req *Request) (map[string]any, error) {
	chain := structured.NewChainWithToolInfo[*Request, map[string]any](e.chatModel, e.buildPrompt, extractToolInfo(req.Fields))
	result, err := chain.Invoke(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	if result == nil || *result == nil {
		return map[string]any{}, nil
	}
	return *result, nil
}

func (e *ToolBasedExtractor) buildPrompt(ctx context.Context, req *Request) ([]*schema.Message, error) {
	message, err := types.FormatToolRequest(&types.ToolRequest{
		Message:     req.Message,
		Intent:      req.Intent,
		Fields:      req.Known,
		FieldSchema: req.FieldSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("convert to prompt message failed: %w", err)
	}
	return []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(e.systemPromptTemplate, req.Intent, extractToolName)),
		schema.UserMessage(message),
	}, nil
}

func extractToolInfo(fields []string) *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(fields))
	for _, f := range fields {
		params[f] = &schema.ParameterInfo{
			Type: schema.String,
			Desc: strings.ReplaceAll(f, "_", " "),
		}
	}
	return &schema.ToolInfo{
		Name:        extractToolName,
		Desc:        extractToolDescription,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}
