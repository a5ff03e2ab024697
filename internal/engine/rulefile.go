package engine

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bcsaller/disco/internal/rule"
)

// ruleFile is the YAML shape of a *.rules file.
type ruleFile struct {
	Format int              `yaml:"format"`
	Rules  []ruleDefinition `yaml:"rules"`
}

type ruleDefinition struct {
	Rule ruleBody `yaml:"rule"`
}

type ruleBody struct {
	When interface{} `yaml:"when"`
	Op   string      `yaml:"op"`
	Do   string      `yaml:"do"`
}

// parseRuleFile decodes data as a *.rules document and returns the
// Rules it declares, in file order.
func parseRuleFile(data []byte) ([]*rule.Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("engine: parse rules: %w", err)
	}
	if doc.Format == 0 {
		doc.Format = 1
	}
	if doc.Format != 1 {
		return nil, fmt.Errorf("engine: unknown rules format %d", doc.Format)
	}

	rules := make([]*rule.Rule, 0, len(doc.Rules))
	for _, d := range doc.Rules {
		r, err := buildRule(d.Rule)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// buildRule turns one parsed `rule:` body into a *rule.Rule, accepting
// both the structured `when` (string or list) and the legacy compact
// form: a single string optionally prefixed "any:" or "all:" followed
// by a comma-separated dep list.
func buildRule(body ruleBody) (*rule.Rule, error) {
	if body.Do == "" {
		return nil, fmt.Errorf("engine: rule missing \"do\" handler")
	}

	deps, opName, err := parseWhen(body.When)
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		return nil, fmt.Errorf("engine: rule %q has no dependencies", body.Do)
	}

	// An explicit op: field overrides whatever the compact form implied.
	if body.Op != "" {
		opName = body.Op
	}
	if opName == "" {
		opName = "all"
	}

	op := rule.All
	if opName == "any" {
		op = rule.Any
	} else if opName != "all" {
		return nil, fmt.Errorf("engine: rule %q has unknown op %q", body.Do, opName)
	}

	return rule.New(deps, op, opName, body.Do, true), nil
}

// parseWhen normalizes the `when` field into a dep list and an
// optional op name implied by a legacy "any:"/"all:" compact prefix.
func parseWhen(when interface{}) (deps []string, opName string, err error) {
	switch v := when.(type) {
	case nil:
		return nil, "", fmt.Errorf("engine: rule missing \"when\" field")
	case string:
		return parseCompactWhen(v)
	case []interface{}:
		deps = make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, "", fmt.Errorf("engine: \"when\" list entries must be strings")
			}
			deps = append(deps, strings.TrimSpace(s))
		}
		return deps, "", nil
	default:
		return nil, "", fmt.Errorf("engine: \"when\" must be a string or a list of strings")
	}
}

func parseCompactWhen(s string) ([]string, string, error) {
	opName := ""
	rest := s
	if after, ok := strings.CutPrefix(s, "any:"); ok {
		opName = "any"
		rest = after
	} else if after, ok := strings.CutPrefix(s, "all:"); ok {
		opName = "all"
		rest = after
	}
	parts := strings.Split(rest, ",")
	deps := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			deps = append(deps, p)
		}
	}
	return deps, opName, nil
}
