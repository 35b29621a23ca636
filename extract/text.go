package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/hrflow/structured"
)

// TextExtractor asks for a bare JSON object instead of a tool call, for
// deployments without tool support.
type TextExtractor struct {
	chatModel model.BaseChatModel
}

func NewTextExtractor(chatModel model.BaseChatModel) *TextExtractor {
	return &TextExtractor{chatModel: chatModel}
}

func (e *TextExtractor) Extract(ctx context.Context, req *Request) (map[string]any, error) {
	systemPrompt := fmt.Sprintf("You are extracting structured JSON from this HR message. Intent: %s. Return ONLY a JSON with fields: %v", req.Intent, req.Fields)
	resp, err := e.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(req.Message),
	})
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty model response")
	}
	var out map[string]any
	if err := sonic.UnmarshalString(structured.StripCodeFence(resp.Content), &out); err != nil {
		return nil, fmt.Errorf("parse extracted JSON failed: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("extracted JSON is not an object: %s", resp.Content)
	}
	return out, nil
}

type FailbackExtractor struct {
	extractors []Extractor
}

func NewFailbackExtractor(extractors ...Extractor) *FailbackExtractor {
	return &FailbackExtractor{extractors: extractors}
}

func (e *FailbackExtractor) Extract(ctx context.Context, req *Request) (map[string]any, error) {
	lastErr := errors.New("no extractor configured")
	for _, extractor := range e.extractors {
		fields, err := extractor.Extract(ctx, req)
		if err == nil {
			return fields, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all extractors failed: %w", lastErr)
}
