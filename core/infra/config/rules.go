package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a creator tag to an item kind label. Rules are evaluated in
// order; the first rule whose tag appears in the item's tags wins.
type Rule struct {
	Tag  string `yaml:"tag"`
	Kind string `yaml:"kind"`
}

// RuleTable is an ordered tag classification table.
type RuleTable struct {
	Rules    []Rule `yaml:"rules"`
	Fallback string `yaml:"fallback"`
}

// LoadRules reads a rule table from a YAML file.
func LoadRules(path string) (*RuleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules read: %w", err)
	}
	var table RuleTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("rules parse: %w", err)
	}
	if len(table.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}
	return &table, nil
}

// DefaultRules returns the built-in classification table used when no
// rules file is present.
func DefaultRules() *RuleTable {
	return &RuleTable{
		Rules: []Rule{
			{Tag: "skinpack", Kind: "skin_pack"},
			{Tag: "persona", Kind: "persona"},
			{Tag: "capes", Kind: "persona_cape"},
			{Tag: "addon", Kind: "addon"},
			{Tag: "mashup", Kind: "mashup"},
			{Tag: "texture", Kind: "resource_pack"},
			{Tag: "worldtemplate", Kind: "world_template"},
		},
		Fallback: "other",
	}
}

// Classify returns the kind label for a set of creator tags.
func (t *RuleTable) Classify(tags []string) string {
	for _, rule := range t.Rules {
		for _, tag := range tags {
			if strings.EqualFold(tag, rule.Tag) {
				return rule.Kind
			}
		}
	}
	if t.Fallback != "" {
		return t.Fallback
	}
	return "other"
}
