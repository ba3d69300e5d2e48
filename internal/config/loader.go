package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by WithDefaults.
const (
	DefaultAddr             = ":8080"
	DefaultAssetsDir        = "~/.medqa"
	DefaultIndexFile        = "guidelines.db"
	DefaultConversationsDB  = "conversations.db"
	DefaultLogLevel         = "info"
	DefaultAssetWaitSeconds = 600
	DefaultMaxBodyBytes     = 1 << 20
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults, except for
// the model tuning fields whose packages apply their own defaults.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// AssetsDir is scanned for *.gguf files when model paths are not given.
	AssetsDir       string `json:"assets_dir" yaml:"assets_dir" toml:"assets_dir"`
	ModelPath       string `json:"model_path" yaml:"model_path" toml:"model_path"`
	EmbedModelPath  string `json:"embed_model_path" yaml:"embed_model_path" toml:"embed_model_path"`
	IndexPath       string `json:"index_path" yaml:"index_path" toml:"index_path"`
	ConversationsDB string `json:"conversations_db" yaml:"conversations_db" toml:"conversations_db"`
	// DisableConversations turns off the conversation store.
	DisableConversations bool `json:"disable_conversations" yaml:"disable_conversations" toml:"disable_conversations"`

	RetrievalK       int     `json:"retrieval_k" yaml:"retrieval_k" toml:"retrieval_k"`
	SimilarityCutoff float64 `json:"similarity_cutoff" yaml:"similarity_cutoff" toml:"similarity_cutoff"`

	ContextTokens int `json:"context_tokens" yaml:"context_tokens" toml:"context_tokens"`
	CharsPerToken int `json:"chars_per_token" yaml:"chars_per_token" toml:"chars_per_token"`
	ReservedChars int `json:"reserved_chars" yaml:"reserved_chars" toml:"reserved_chars"`

	ModelContextSize int     `json:"model_context_size" yaml:"model_context_size" toml:"model_context_size"`
	Threads          int     `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers        int     `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature      float32 `json:"temperature" yaml:"temperature" toml:"temperature"`

	LogLevel               string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSEnabled            bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins            []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes           int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	GenerateTimeoutSeconds int64    `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds"`
	AssetWaitSeconds       int64    `json:"asset_wait_seconds" yaml:"asset_wait_seconds" toml:"asset_wait_seconds"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// WithDefaults returns c with unset fields filled in. Relative index and
// conversation database paths are left relative; they resolve against
// AssetsDir.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.AssetsDir == "" {
		c.AssetsDir = DefaultAssetsDir
	}
	if c.IndexPath == "" {
		c.IndexPath = DefaultIndexFile
	}
	if c.ConversationsDB == "" {
		c.ConversationsDB = DefaultConversationsDB
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.AssetWaitSeconds <= 0 {
		c.AssetWaitSeconds = DefaultAssetWaitSeconds
	}
	if c.SimilarityCutoff < 0 {
		c.SimilarityCutoff = 0
	}
	return c
}

// Merge returns c with every non-zero field of o copied over it. Booleans
// can only be switched on.
func (c Config) Merge(o Config) Config {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.AssetsDir != "" {
		c.AssetsDir = o.AssetsDir
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.EmbedModelPath != "" {
		c.EmbedModelPath = o.EmbedModelPath
	}
	if o.IndexPath != "" {
		c.IndexPath = o.IndexPath
	}
	if o.ConversationsDB != "" {
		c.ConversationsDB = o.ConversationsDB
	}
	c.DisableConversations = c.DisableConversations || o.DisableConversations
	if o.RetrievalK != 0 {
		c.RetrievalK = o.RetrievalK
	}
	if o.SimilarityCutoff != 0 {
		c.SimilarityCutoff = o.SimilarityCutoff
	}
	if o.ContextTokens != 0 {
		c.ContextTokens = o.ContextTokens
	}
	if o.CharsPerToken != 0 {
		c.CharsPerToken = o.CharsPerToken
	}
	if o.ReservedChars != 0 {
		c.ReservedChars = o.ReservedChars
	}
	if o.ModelContextSize != 0 {
		c.ModelContextSize = o.ModelContextSize
	}
	if o.Threads != 0 {
		c.Threads = o.Threads
	}
	if o.GPULayers != 0 {
		c.GPULayers = o.GPULayers
	}
	if o.MaxTokens != 0 {
		c.MaxTokens = o.MaxTokens
	}
	if o.Temperature != 0 {
		c.Temperature = o.Temperature
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	c.CORSEnabled = c.CORSEnabled || o.CORSEnabled
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	if o.MaxBodyBytes != 0 {
		c.MaxBodyBytes = o.MaxBodyBytes
	}
	if o.GenerateTimeoutSeconds != 0 {
		c.GenerateTimeoutSeconds = o.GenerateTimeoutSeconds
	}
	if o.AssetWaitSeconds != 0 {
		c.AssetWaitSeconds = o.AssetWaitSeconds
	}
	return c
}

// AssetWait is AssetWaitSeconds as a duration.
func (c Config) AssetWait() time.Duration {
	return time.Duration(c.AssetWaitSeconds) * time.Second
}
