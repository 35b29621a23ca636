package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/tbxark/hrflow/agent"
	"github.com/tbxark/hrflow/command"
	"github.com/tbxark/hrflow/dialogue"
	"github.com/tbxark/hrflow/extract"
	"github.com/tbxark/hrflow/intent"
	"github.com/tbxark/hrflow/webhook"
	"github.com/tbxark/hrflow/workflow"
)

func (c *Config) NewChatModel(ctx context.Context) (*openai.ChatModel, error) {
	temperature := c.LLM.Temperature
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		ByAzure:     c.LLM.ByAzure,
		APIVersion:  c.LLM.APIVersion,
		Temperature: &temperature,
	})
}

func (c *Config) NewRegistry() (*workflow.Registry, error) {
	return workflow.NewRegistry(c.Workflows)
}

func (c *Config) NewCommandParser() *command.LocalCommandParser {
	p := command.NewLocalCommandParser()
	if len(c.Vocabulary.Affirmative) > 0 {
		p.Affirmative = command.NewVocabulary(c.Vocabulary.Affirmative...)
	}
	if len(c.Vocabulary.Negative) > 0 {
		p.Negative = command.NewVocabulary(c.Vocabulary.Negative...)
	}
	if len(c.Vocabulary.SmallTalk) > 0 {
		p.SmallTalk = command.NewVocabulary(c.Vocabulary.SmallTalk...)
	}
	return p
}

func (c *Config) NewSessionStore() *agent.SessionStore {
	if c.Store.Backend == StoreGoCache {
		return agent.NewSessionStore(agent.NewGoCache[*agent.Session](c.Store.TTL))
	}
	return agent.NewMemorySessionStore()
}

func (c *Config) NewSubmitter(logger *slog.Logger) (webhook.Submitter, error) {
	if c.Webhook.DryRun {
		return webhook.NewLogSubmitter(logger), nil
	}
	targets, err := webhook.Targets(c.Webhook.BaseURL, c.Webhook.Targets)
	if err != nil {
		return nil, err
	}
	return webhook.NewHTTPSubmitter(targets, webhook.WithTimeout(c.Webhook.Timeout)), nil
}

// NewFlow assembles the engine, creating the chat model when a component
// needs one. Keyword mode never calls a model.
func (c *Config) NewFlow(ctx context.Context, logger *slog.Logger) (*agent.Flow, error) {
	var chatModel model.ToolCallingChatModel
	if c.NeedsModel() {
		cm, err := c.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create chat model: %w", err)
		}
		chatModel = cm
	}
	return c.NewFlowWithModel(chatModel, logger)
}

// NewFlowWithModel assembles the engine around chatModel. In llm mode a
// classification failure is final: the keyword classifier is not consulted,
// so a model outage never re-routes a session. Extraction degrades through
// the text and key-value extractors.
func (c *Config) NewFlowWithModel(chatModel model.ToolCallingChatModel, logger *slog.Logger) (*agent.Flow, error) {
	registry, err := c.NewRegistry()
	if err != nil {
		return nil, err
	}
	submitter, err := c.NewSubmitter(logger)
	if err != nil {
		return nil, err
	}
	if c.NeedsModel() && chatModel == nil {
		return nil, errors.New("chat model is required when oracle.mode or dialogue.mode is llm")
	}

	var classifier intent.Classifier = intent.NewKeywordClassifier()
	var extractor extract.Extractor = extract.NewKeyValueExtractor()
	if c.Oracle.Mode == OracleLLM {
		classifier, err = intent.NewToolBasedClassifier(chatModel, intent.WithKinds(registry.Kinds()...))
		if err != nil {
			return nil, fmt.Errorf("create classifier: %w", err)
		}
		extractor = extract.NewFailbackExtractor(
			extract.NewToolBasedExtractor(chatModel),
			extract.NewTextExtractor(chatModel),
			extractor,
		)
	}

	var generator dialogue.Generator = dialogue.NewLocalDialogueGenerator()
	if c.Dialogue.Mode == DialogueLLM {
		generator = dialogue.NewFailbackDialogueGenerator(
			dialogue.NewToolBasedDialogueGenerator(chatModel, dialogue.WithDialogueLang(c.Dialogue.Lang)),
			generator,
		)
	}

	return agent.NewFlow(classifier, extractor, submitter,
		agent.WithStore(c.NewSessionStore()),
		agent.WithRegistry(registry),
		agent.WithCommandParser(c.NewCommandParser()),
		agent.WithDialogueGenerator(generator),
		agent.WithLogger(logger),
	)
}
