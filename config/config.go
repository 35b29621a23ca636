package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tbxark/hrflow/webhook"
	"github.com/tbxark/hrflow/workflow"
)

const (
	OracleLLM     = "llm"
	OracleKeyword = "keyword"

	DialogueLocal = "local"
	DialogueLLM   = "llm"

	StoreMemory  = "memory"
	StoreGoCache = "gocache"
)

type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	ByAzure     bool    `mapstructure:"by_azure"`
	APIVersion  string  `mapstructure:"api_version"`
	Temperature float32 `mapstructure:"temperature"`
}

type OracleConfig struct {
	Mode string `mapstructure:"mode"`
}

type DialogueConfig struct {
	Mode string `mapstructure:"mode"`
	Lang string `mapstructure:"lang"`
}

type WebhookConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Targets map[string]string `mapstructure:"targets"`
	Timeout time.Duration     `mapstructure:"timeout"`
	DryRun  bool              `mapstructure:"dry_run"`
}

type VocabularyConfig struct {
	Affirmative []string `mapstructure:"affirmative"`
	Negative    []string `mapstructure:"negative"`
	SmallTalk   []string `mapstructure:"small_talk"`
}

type StoreConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type Config struct {
	LLM        LLMConfig           `mapstructure:"llm"`
	Oracle     OracleConfig        `mapstructure:"oracle"`
	Dialogue   DialogueConfig      `mapstructure:"dialogue"`
	Webhook    WebhookConfig       `mapstructure:"webhook"`
	Workflows  map[string][]string `mapstructure:"workflows"`
	Vocabulary VocabularyConfig    `mapstructure:"vocabulary"`
	Store      StoreConfig         `mapstructure:"store"`
	Server     ServerConfig        `mapstructure:"server"`
	Log        LogConfig           `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.by_azure", false)
	v.SetDefault("llm.api_version", "")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("oracle.mode", "")
	v.SetDefault("dialogue.mode", DialogueLocal)
	v.SetDefault("dialogue.lang", "English")
	v.SetDefault("webhook.base_url", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.dry_run", false)
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.ttl", 0)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// Load reads .env, then the config file at path (or hrflow.yaml/json in the
// working directory when path is empty), then HRFLOW_* environment variables.
// AZURE_OPENAI_* variables are accepted as fallbacks for the llm keys.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HRFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "HRFLOW_LLM_API_KEY", "AZURE_OPENAI_KEY")
	_ = v.BindEnv("llm.base_url", "HRFLOW_LLM_BASE_URL", "AZURE_OPENAI_ENDPOINT")
	_ = v.BindEnv("llm.model", "HRFLOW_LLM_MODEL", "AZURE_OPENAI_DEPLOYMENT")
	_ = v.BindEnv("llm.api_version", "HRFLOW_LLM_API_VERSION", "AZURE_OPENAI_API_VERSION")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hrflow")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) normalize() error {
	c.Oracle.Mode = strings.ToLower(strings.TrimSpace(c.Oracle.Mode))
	if c.Oracle.Mode == "" {
		c.Oracle.Mode = OracleKeyword
		if c.LLM.APIKey != "" {
			c.Oracle.Mode = OracleLLM
		}
	}
	c.Dialogue.Mode = strings.ToLower(strings.TrimSpace(c.Dialogue.Mode))
	if c.Dialogue.Mode == "" {
		c.Dialogue.Mode = DialogueLocal
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	switch c.Oracle.Mode {
	case OracleLLM, OracleKeyword:
	default:
		return fmt.Errorf("unknown oracle.mode %q", c.Oracle.Mode)
	}
	switch c.Dialogue.Mode {
	case DialogueLocal, DialogueLLM:
	default:
		return fmt.Errorf("unknown dialogue.mode %q", c.Dialogue.Mode)
	}
	switch c.Store.Backend {
	case StoreMemory, StoreGoCache:
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.NeedsModel() && (c.LLM.APIKey == "" || c.LLM.Model == "") {
		return errors.New("llm.api_key and llm.model are required when oracle.mode or dialogue.mode is llm")
	}
	if _, err := workflow.NewRegistry(c.Workflows); err != nil {
		return err
	}
	if _, err := webhook.Targets(c.Webhook.BaseURL, c.Webhook.Targets); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// NeedsModel reports whether any component talks to the chat model.
func (c *Config) NeedsModel() bool {
	return c.Oracle.Mode == OracleLLM || c.Dialogue.Mode == DialogueLLM
}
