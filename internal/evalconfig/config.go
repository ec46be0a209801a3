// Package evalconfig loads evaluation configuration: penalty weights, agent
// identity patterns, judge settings, and storage/transcript locations.
// Configuration is resolved once per invocation (file, then environment,
// then caller overrides) and threaded through constructors explicitly; no
// component re-reads it from disk.
package evalconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"autoeval/internal/intervention"
	"autoeval/internal/record"
)

// Config is the resolved evaluation configuration.
type Config struct {
	// PenaltyWeights maps intervention event types to their penalty. See
	// intervention.DefaultWeights for the documented defaults.
	PenaltyWeights map[string]float64 `mapstructure:"penalty_weights"`

	// AgentAuthors are lowercase substrings identifying the agent's own
	// commit identity ("name <email>"). Commits not matching any pattern
	// classify as manual edits.
	AgentAuthors []string `mapstructure:"agent_authors"`

	// TestFixPatterns are commit-subject substrings marking test-failure
	// remediation.
	TestFixPatterns []string `mapstructure:"test_fix_patterns"`

	JudgeModel    string `mapstructure:"judge_model"`
	JudgeProvider string `mapstructure:"judge_provider"`
	JudgeBaseURL  string `mapstructure:"judge_base_url"`
	JudgeAPIKey   string `mapstructure:"judge_api_key"`

	StoreDir       string   `mapstructure:"store_dir"`
	TranscriptDirs []string `mapstructure:"transcript_dirs"`

	// PricingTablePath optionally points at a YAML rate table that overrides
	// the built-in model pricing.
	PricingTablePath string `mapstructure:"pricing_table"`
}

// Load resolves configuration. configFile may be empty, in which case
// autoeval.yaml is searched in ~/.autoeval and the working directory. A
// missing file is fine; defaults plus environment still apply. EVAL_MODEL
// overrides the judge model.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for eventType, weight := range intervention.DefaultWeights() {
		v.SetDefault("penalty_weights."+string(eventType), weight)
	}
	v.SetDefault("agent_authors", []string{"autoeval-agent", "[bot]", "noreply@autoeval"})
	v.SetDefault("test_fix_patterns", []string{"fix test", "fix failing", "failing test", "fix ci", "test failure"})
	v.SetDefault("judge_model", "gpt-4o")
	v.SetDefault("judge_provider", "openai")
	v.SetDefault("store_dir", "~/.autoeval/evals")
	v.SetDefault("transcript_dirs", []string{"~/.autoeval/transcripts", "~/.claude/projects"})

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("autoeval")
		v.AddConfigPath(filepath.Join("$HOME", ".autoeval"))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AUTOEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// EVAL_MODEL is the documented judge override, kept unprefixed.
	_ = v.BindEnv("judge_model", "EVAL_MODEL", "AUTOEVAL_JUDGE_MODEL")
	_ = v.BindEnv("judge_api_key", "AUTOEVAL_JUDGE_API_KEY", "OPENAI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Weights converts the configured penalty map to typed event weights,
// falling back to defaults for any type the file omitted.
func (c Config) Weights() map[record.EventType]float64 {
	weights := intervention.DefaultWeights()
	for name, weight := range c.PenaltyWeights {
		weights[record.EventType(name)] = weight
	}
	return weights
}

// ExpandedTranscriptDirs returns transcript roots with ~ expanded.
func (c Config) ExpandedTranscriptDirs() []string {
	dirs := make([]string, 0, len(c.TranscriptDirs))
	for _, dir := range c.TranscriptDirs {
		dirs = append(dirs, ExpandHome(dir))
	}
	return dirs
}

// ExpandHome resolves a leading ~/ against the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
