package testcases

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sync"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/tbxark/hrflow/agent"
	"github.com/tbxark/hrflow/workflow"
)

type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf Config
	err = json.Unmarshal(file, &conf)
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{BaseURL:%q, Model:%q}", c.BaseURL, c.Model)
}

func InitChatModel(t *testing.T) *openai.ChatModel {
	if os.Getenv("HRFLOW_RUN_LIVE_TESTS") != "1" {
		t.Skip("set HRFLOW_RUN_LIVE_TESTS=1 to run live LLM tests")
		return nil
	}

	ctx := context.Background()
	conf, err := loadConfig("../config.json")
	if err != nil {
		t.Skipf("failed to load config: %v", err)
		return nil
	}
	if conf.APIKey == "" {
		t.Skip("config.json api_key is empty")
		return nil
	}
	temperature := float32(0)
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      conf.APIKey,
		Model:       conf.Model,
		BaseURL:     conf.BaseURL,
		Temperature: &temperature,
	})
	if err != nil {
		t.Fatalf("failed to init chat model: %v", err)
		return nil
	}
	return chatModel
}

// Outbox records submissions instead of calling a webhook.
type Outbox struct {
	mu    sync.Mutex
	items map[workflow.Kind][]map[string]any
}

func (o *Outbox) Submit(ctx context.Context, kind workflow.Kind, payload map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.items == nil {
		o.items = map[workflow.Kind][]map[string]any{}
	}
	o.items[kind] = append(o.items[kind], maps.Clone(payload))
	return nil
}

func (o *Outbox) Get(kind workflow.Kind) []map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items[kind]
}

func NewTestFlow(t *testing.T) (*agent.Flow, *Outbox) {
	chatModel := InitChatModel(t)
	if chatModel == nil {
		return nil, nil
	}
	outbox := &Outbox{}
	flow, err := agent.NewToolBasedFlow(chatModel, outbox)
	if err != nil {
		t.Fatalf("failed to create flow: %v", err)
	}
	return flow, outbox
}
