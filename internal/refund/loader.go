package refund

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML or JSON policy file and validates it.
func LoadFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read refund policy: %w", err)
	}
	return Parse(data)
}

// Parse accepts a JSON object (camelCase keys) or YAML (snake_case keys).
func Parse(data []byte) (Policy, error) {
	var p Policy
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return Policy{}, fmt.Errorf("parse refund policy: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse refund policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// ParseRules decodes the per-session override stored alongside a session.
// An empty payload means no override.
func ParseRules(raw []byte) (*Policy, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode session refund rules: %w", err)
	}
	p := Policy{Name: "session override", Rules: rules}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
