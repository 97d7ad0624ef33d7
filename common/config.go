package common

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ProviderConfig carries the credentials and endpoint for one LLM backend.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key" json:"api_key,omitempty"`
	BaseURL string `koanf:"base_url" json:"base_url,omitempty"`
}

// SummaryConfig sets per-rollup token budgets for summarization chunking.
type SummaryConfig struct {
	PeriodicMaxTokens int `koanf:"periodic_max_tokens" json:"periodic_max_tokens"`
	DailyMaxTokens    int `koanf:"daily_max_tokens" json:"daily_max_tokens"`
	WeeklyMaxTokens   int `koanf:"weekly_max_tokens" json:"weekly_max_tokens"`
	MonthlyMaxTokens  int `koanf:"monthly_max_tokens" json:"monthly_max_tokens"`
}

// DedupConfig controls the memory engine's deduplication passes.
type DedupConfig struct {
	SimilarityThreshold  float64 `koanf:"similarity_threshold" json:"similarity_threshold"`
	MinSharedKeywords    int     `koanf:"min_shared_keywords" json:"min_shared_keywords"`
	MaxGroups            int     `koanf:"max_groups" json:"max_groups"`
	MaxMemoriesPerGroup  int     `koanf:"max_memories_per_group" json:"max_memories_per_group"`
	MaxClusters          int     `koanf:"max_clusters" json:"max_clusters"`
	MinTopicMemoryCount  int     `koanf:"min_topic_memory_count" json:"min_topic_memory_count"`
	GroupTokenBudget     int     `koanf:"group_token_budget" json:"group_token_budget"`
	TopicThreshold       float64 `koanf:"topic_threshold" json:"topic_threshold"`
}

// BrainletConfig names a minor orchestrator plug-in with its own model and
// free-form options.
type BrainletConfig struct {
	Name    string         `koanf:"name" json:"name"`
	Model   string         `koanf:"model" json:"model"`
	Options map[string]any `koanf:"options" json:"options,omitempty"`
}

// DBConfig holds the sqlite database file paths.
type DBConfig struct {
	Path   string `koanf:"path" json:"path"`
	KVPath string `koanf:"kv_path" json:"kv_path"`
}

// Config is the single JSON configuration file shared by every cortex
// service. Service discovery (ports) intentionally stays on environment
// variables; everything else lives here.
type Config struct {
	TimeoutSeconds      int                       `koanf:"timeout" json:"timeout"`
	DedupTimeoutSeconds int                       `koanf:"dedup_timeout" json:"dedup_timeout"`
	BufferSize          int                       `koanf:"buffer_size" json:"buffer_size"`
	SummaryCount        int                       `koanf:"summary_count" json:"summary_count"`
	DB                  DBConfig                  `koanf:"db" json:"db"`
	Providers           map[string]ProviderConfig `koanf:"providers" json:"providers"`
	LLM                 ModelConfig               `koanf:"llm" json:"llm"`
	Embedding           ModelConfig               `koanf:"embedding" json:"embedding"`
	Summary             SummaryConfig             `koanf:"summary" json:"summary"`
	Dedup               DedupConfig               `koanf:"dedup" json:"dedup"`
	Modes               []string                  `koanf:"modes" json:"modes"`
	DefaultMode         string                    `koanf:"default_mode" json:"default_mode"`
	AdminUserId         string                    `koanf:"admin_user_id" json:"admin_user_id"`
	StrangerMessage     string                    `koanf:"stranger_message" json:"stranger_message"`
	Brainlets           []BrainletConfig          `koanf:"brainlets" json:"brainlets,omitempty"`
	FlagsPath           string                    `koanf:"flags_path" json:"flags_path,omitempty"`
}

const defaultStrangerMessage = "Sorry, I don't talk to strangers. Ask my admin to introduce us first."

// DefaultConfig returns a config with every knob at its documented default.
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:      60,
		DedupTimeoutSeconds: 300,
		BufferSize:          20,
		SummaryCount:        4,
		LLM: ModelConfig{
			Model:     "mistral",
			MaxTokens: 1024,
		},
		Embedding: ModelConfig{
			Provider: "openai",
			Model:    "oai-te3-sm",
		},
		Summary: SummaryConfig{
			PeriodicMaxTokens: 4096,
			DailyMaxTokens:    4096,
			WeeklyMaxTokens:   8192,
			MonthlyMaxTokens:  8192,
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.65,
			MinSharedKeywords:   2,
			MaxGroups:           10,
			MaxMemoriesPerGroup: 12,
			MaxClusters:         10,
			MinTopicMemoryCount: 2,
			GroupTokenBudget:    4096,
			TopicThreshold:      0.75,
		},
		Modes:           []string{"default", "work", "guest"},
		DefaultMode:     "default",
		StrangerMessage: defaultStrangerMessage,
	}
}

// Timeout returns the default deadline for outbound calls.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DedupTimeout returns the extended deadline used by deduplication jobs.
func (c Config) DedupTimeout() time.Duration {
	return time.Duration(c.DedupTimeoutSeconds) * time.Second
}

// Provider returns the configured credentials for the named provider, if any.
func (c Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}

// Brainlet returns the named brainlet config and whether it exists.
func (c Config) Brainlet(name string) (BrainletConfig, bool) {
	for _, b := range c.Brainlets {
		if b.Name == name {
			return b, true
		}
	}
	return BrainletConfig{}, false
}

// Validate ensures the config is internally consistent.
func (c Config) Validate() error {
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSeconds)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.DefaultMode != "" && len(c.Modes) > 0 && !slices.Contains(c.Modes, c.DefaultMode) {
		return fmt.Errorf("default_mode %q is not listed in modes", c.DefaultMode)
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold >= 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0,1), got %f", c.Dedup.SimilarityThreshold)
	}
	for _, b := range c.Brainlets {
		if b.Name == "" {
			return fmt.Errorf("brainlet with empty name")
		}
	}
	return nil
}

// GetConfig loads the cortex configuration from the given file path. If the
// config file doesn't exist, the defaults are returned. The config file is
// expected to be in JSON format.
func GetConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), json.Parser()); err != nil {
		return Config{}, fmt.Errorf("error loading config: %w", err)
	}

	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default path for the cortex config file.
// Can be overridden by setting the CORTEX_CONFIG environment variable.
func GetDefaultConfigPath() string {
	if path := os.Getenv("CORTEX_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(xdg.ConfigHome, "cortex", "config.json")
}
