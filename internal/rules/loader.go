package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// EnvRulesPath overrides the constitution rule-set path for a run.
const EnvRulesPath = "SPECC_RULES_PATH"

// DefaultFilename is the conventional constitution location inside a
// project root.
const DefaultFilename = "constitution.yml"

// RuleSet is the immutable, ordered constitution for one compilation run.
type RuleSet struct {
	Version string
	Rules   []Rule
}

// ruleFile is the on-disk shape of a constitution.
type ruleFile struct {
	Version string       `yaml:"version"`
	Rules   []Definition `yaml:"rules"`
}

// Parse builds a rule set from constitution YAML bytes. The version field
// must be valid semver; rule identifiers must be unique.
func Parse(data []byte) (*RuleSet, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("malformed constitution: %w", err)
	}

	version := file.Version
	if version == "" {
		return nil, fmt.Errorf("constitution is missing a version")
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("constitution version %q is not valid semver", file.Version)
	}

	set := &RuleSet{Version: version, Rules: make([]Rule, 0, len(file.Rules))}
	seen := make(map[string]bool)
	for _, def := range file.Rules {
		rule, err := Compile(def)
		if err != nil {
			return nil, err
		}
		if seen[rule.ID()] {
			return nil, fmt.Errorf("duplicate rule identifier %s", rule.ID())
		}
		seen[rule.ID()] = true
		set.Rules = append(set.Rules, rule)
	}
	return set, nil
}

// LoadFile reads and parses a constitution file.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read constitution: %w", err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Load resolves the constitution for a run. Precedence: explicit path,
// then the SPECC_RULES_PATH environment override, then constitution.yml
// beside the project directories, then the builtin default set.
func Load(explicitPath, rootDir string) (*RuleSet, error) {
	if explicitPath != "" {
		return LoadFile(explicitPath)
	}
	if envPath := os.Getenv(EnvRulesPath); envPath != "" {
		return LoadFile(envPath)
	}
	if rootDir != "" {
		candidate := filepath.Join(rootDir, DefaultFilename)
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
	}
	return Default(), nil
}

// Default returns the builtin constitution used when no file is present.
func Default() *RuleSet {
	defs := []Definition{
		{
			ID:          "CONST-001",
			Kind:        KindForbiddenPhrase,
			Severity:    "warning",
			Description: "derived work must avoid vague, unverifiable language",
			Phrases: []string{
				"as needed", "as appropriate", "TBD", "to be determined",
				"etc.", "and so on", "handle errors appropriately",
			},
		},
		{
			ID:          "CONST-002",
			Kind:        KindRequiresReference,
			AppliesTo:   "plan_item",
			Severity:    "error",
			Description: "plan items touching persistence must reference a rollback strategy",
			Match:       `persist|database|storage|migration`,
			Requires:    `rollback`,
		},
		{
			ID:          "CONST-003",
			Kind:        KindMaxTasksPerItem,
			AppliesTo:   "plan_item",
			Severity:    "warning",
			Description: "plan items owning too many tasks should be split",
			Max:         10,
		},
	}

	set := &RuleSet{Version: "v1.0.0", Rules: make([]Rule, 0, len(defs))}
	for _, def := range defs {
		rule, err := Compile(def)
		if err != nil {
			// The builtin definitions are fixed; a compile failure here
			// is a programming error.
			panic(fmt.Sprintf("builtin rule %s: %v", def.ID, err))
		}
		set.Rules = append(set.Rules, rule)
	}
	return set
}
