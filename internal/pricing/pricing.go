// Package pricing resolves aggregated token usage into monetary cost using a
// per-model, cache-aware rate table. The table is plain configuration: it can
// be loaded from YAML, and unknown models price to zero without erroring so
// their token counts survive for future repricing.
package pricing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"autoeval/internal/record"
)

// ModelPricing holds the four USD rates per 1K tokens for one model.
type ModelPricing struct {
	InputPer1K      float64 `yaml:"input_per_1k"`
	CacheWritePer1K float64 `yaml:"cache_write_per_1k"`
	CacheReadPer1K  float64 `yaml:"cache_read_per_1k"`
	OutputPer1K     float64 `yaml:"output_per_1k"`
}

// Table maps model identifiers to their pricing.
type Table map[string]ModelPricing

// DefaultTable returns the built-in rate table. Rates current as of mid-2025;
// override per repository with a YAML table when they drift.
func DefaultTable() Table {
	return Table{
		"claude-sonnet-4-20250514": {InputPer1K: 0.003, CacheWritePer1K: 0.00375, CacheReadPer1K: 0.0003, OutputPer1K: 0.015},
		"claude-opus-4-20250514":   {InputPer1K: 0.015, CacheWritePer1K: 0.01875, CacheReadPer1K: 0.0015, OutputPer1K: 0.075},
		"claude-3-5-haiku":         {InputPer1K: 0.0008, CacheWritePer1K: 0.001, CacheReadPer1K: 0.00008, OutputPer1K: 0.004},
		"gpt-4o":                   {InputPer1K: 0.005, CacheReadPer1K: 0.0025, OutputPer1K: 0.015},
		"gpt-4o-mini":              {InputPer1K: 0.00015, CacheReadPer1K: 0.000075, OutputPer1K: 0.0006},
		"deepseek-chat":            {InputPer1K: 0.00027, CacheReadPer1K: 0.00007, OutputPer1K: 0.0011},
	}
}

// LoadTable reads a YAML rate table and merges it over the defaults, so a
// partial file only overrides the models it names.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing table: %w", err)
	}
	var overrides Table
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse pricing table %s: %w", path, err)
	}
	table := DefaultTable()
	for model, rates := range overrides {
		table[model] = rates
	}
	return table, nil
}

// Cost computes the cache-aware cost for one model's usage. The boolean
// reports whether the model was present in the table; absent models cost 0.
func (t Table) Cost(model string, u record.ModelTokenUsage) (float64, bool) {
	rates, ok := t[model]
	if !ok {
		return 0, false
	}
	cost := float64(u.InputTokens)/1000.0*rates.InputPer1K +
		float64(u.CacheCreationTokens)/1000.0*rates.CacheWritePer1K +
		float64(u.CacheReadTokens)/1000.0*rates.CacheReadPer1K +
		float64(u.OutputTokens)/1000.0*rates.OutputPer1K
	return cost, true
}

// Resolve fills CostUSD on every usage entry and returns the total plus the
// sorted list of models the table could not price. Unpriced models keep their
// token counts and are flagged rather than dropped.
func (t Table) Resolve(usage map[string]record.ModelTokenUsage) (total float64, unpriced []string) {
	for model, u := range usage {
		cost, ok := t.Cost(model, u)
		u.CostUSD = cost
		u.Unpriced = !ok
		usage[model] = u
		total += cost
		if !ok {
			unpriced = append(unpriced, model)
		}
	}
	sort.Strings(unpriced)
	return total, unpriced
}
