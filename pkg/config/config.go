// Package config loads and validates the YAML configuration for the
// Storyteller service. Values support ${VAR} and ${VAR:-default} environment
// expansion before parsing.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ravenwood/storyteller/pkg/agent"
	"github.com/ravenwood/storyteller/pkg/embedder"
	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/memory"
	"github.com/ravenwood/storyteller/pkg/observability"
	"github.com/ravenwood/storyteller/pkg/queue"
	"github.com/ravenwood/storyteller/pkg/server"
	"github.com/ravenwood/storyteller/pkg/store"
	"github.com/ravenwood/storyteller/pkg/vector"
)

// RoomConfig declares one game room the service moderates.
type RoomConfig struct {
	ID      string `yaml:"id"`
	Enabled bool   `yaml:"enabled"`
}

// RulesConfig points at rulebook documents ingested into rules memory.
type RulesConfig struct {
	Paths []string `yaml:"paths,omitempty"`
}

// EngineConfig points at the game engine's command webhook. Commands are
// delivered fire-and-forget; an empty URL leaves the dispatcher unset.
type EngineConfig struct {
	CommandURL string        `yaml:"command_url,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EmbedderConfig is the embedding backend with an on/off switch; the agent
// degrades to keyword retrieval when disabled.
type EmbedderConfig struct {
	Enabled               bool `yaml:"enabled"`
	embedder.OpenAIConfig `yaml:",inline"`
}

// QueueConfig is the async queue with an on/off switch; events are
// processed inline when disabled.
type QueueConfig struct {
	Enabled      bool `yaml:"enabled"`
	queue.Config `yaml:",inline"`
}

// VectorConfig selects the optional vector store for rules retrieval.
type VectorConfig struct {
	Enabled              bool `yaml:"enabled"`
	vector.ChromemConfig `yaml:",inline"`
}

// Config is the service's full configuration.
type Config struct {
	Rooms        []RoomConfig               `yaml:"rooms"`
	LLM          llm.RoutingConfig          `yaml:"llm"`
	Embedder     EmbedderConfig             `yaml:"embedder"`
	Memory       memory.Config              `yaml:"memory"`
	Orchestrator agent.Config               `yaml:"orchestrator"`
	Store        store.Config               `yaml:"store"`
	Queue        QueueConfig                `yaml:"queue"`
	Server       server.Config              `yaml:"server"`
	Vector       VectorConfig               `yaml:"vector"`
	Engine       EngineConfig               `yaml:"engine"`
	Tracing      observability.TracerConfig `yaml:"tracing"`
	Logging      LoggingConfig              `yaml:"logging"`
	Rules        RulesConfig                `yaml:"rules"`
}

// SetDefaults fills unset fields across all sections.
func (c *Config) SetDefaults() {
	c.Memory.SetDefaults()
	c.Store.SetDefaults()
	c.Queue.Config.SetDefaults()
	c.Server.SetDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room is required")
	}
	seen := make(map[string]bool, len(c.Rooms))
	for _, room := range c.Rooms {
		if room.ID == "" {
			return fmt.Errorf("room id is required")
		}
		if seen[room.ID] {
			return fmt.Errorf("duplicate room id: %s", room.ID)
		}
		seen[room.ID] = true
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Embedder.Enabled && c.Embedder.APIKey == "" {
		return fmt.Errorf("embedder api_key is required when embedder is enabled")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Logging.Format)
	}
	return nil
}

// Load reads a YAML file, expands environment references, applies defaults
// and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes config bytes with env expansion, defaults and validation.
func Parse(raw []byte) (*Config, error) {
	expanded := expandEnvVars(string(raw))

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(expanded), &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	normalizeDurations(&root)

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var durationPattern = regexp.MustCompile(`^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`)

// normalizeDurations rewrites scalar values like "20s" into integer
// nanoseconds so time.Duration fields decode without custom unmarshalers.
func normalizeDurations(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		if durationPattern.MatchString(n.Value) {
			if d, err := time.ParseDuration(n.Value); err == nil {
				n.Value = strconv.FormatInt(int64(d), 10)
				n.Tag = "!!int"
			}
		}
		return
	}
	if n.Kind == yaml.MappingNode {
		// Skip keys: only values at odd positions are candidates.
		for i := 1; i < len(n.Content); i += 2 {
			normalizeDurations(n.Content[i])
		}
		return
	}
	for _, child := range n.Content {
		normalizeDurations(child)
	}
}
