// Package criteria turns instructor-authored rubric configuration into
// the normalized weighted tree the grader walks.
package criteria

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the declarative rubric document, accepted as JSON or YAML.
type Config struct {
	TestLibrary string          `json:"test_library,omitempty" yaml:"test_library,omitempty"`
	Base        *CategoryConfig `json:"base" yaml:"base"`
	Bonus       *CategoryConfig `json:"bonus,omitempty" yaml:"bonus,omitempty"`
	Penalty     *CategoryConfig `json:"penalty,omitempty" yaml:"penalty,omitempty"`
}

// CategoryConfig is a top-level weighting group. It holds tests or
// subjects, never both.
type CategoryConfig struct {
	Weight   float64         `json:"weight" yaml:"weight"`
	Subjects []SubjectConfig `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Tests    []TestConfig    `json:"tests,omitempty" yaml:"tests,omitempty"`
}

// SubjectConfig is a nested weighting group. A subject may mix tests
// and subjects only when SubjectsWeight splits the mass between them.
type SubjectConfig struct {
	SubjectName    string          `json:"subject_name" yaml:"subject_name"`
	Weight         float64         `json:"weight" yaml:"weight"`
	SubjectsWeight *float64        `json:"subjects_weight,omitempty" yaml:"subjects_weight,omitempty"`
	Subjects       []SubjectConfig `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Tests          []TestConfig    `json:"tests,omitempty" yaml:"tests,omitempty"`
}

// TestConfig declares one rubric test. File may be a single filename, a
// list, or the literal "all"; Parameters may be a named mapping, an
// array of {name, value} records, or a positional list.
type TestConfig struct {
	Name       string      `json:"name" yaml:"name"`
	Weight     float64     `json:"weight,omitempty" yaml:"weight,omitempty"`
	File       interface{} `json:"file,omitempty" yaml:"file,omitempty"`
	Parameters interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ConfigError reports a rubric that violates the structural invariants.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid criteria config: " + e.Reason
	}
	return fmt.Sprintf("invalid criteria config at %s: %s", e.Path, e.Reason)
}

// UnknownTestError reports a test name the loaded template does not expose.
type UnknownTestError struct {
	TestName string
	Template string
}

func (e *UnknownTestError) Error() string {
	return fmt.Sprintf("template %q exposes no test %q", e.Template, e.TestName)
}

// ParseJSON decodes a JSON rubric document.
func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Reason: "malformed JSON: " + err.Error()}
	}
	return &cfg, nil
}

// ParseYAML decodes a YAML rubric document.
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Reason: "malformed YAML: " + err.Error()}
	}
	return &cfg, nil
}

// Parse tries JSON first and falls back to YAML, matching how rubric
// uploads arrive with either content type.
func Parse(data []byte) (*Config, error) {
	if cfg, err := ParseJSON(data); err == nil {
		return cfg, nil
	}
	return ParseYAML(data)
}

// NormalizeParameters converts the three accepted parameter shapes into
// one named mapping. Positional values bind to arg0, arg1, ...
func NormalizeParameters(raw interface{}) (map[string]interface{}, error) {
	if raw == nil {
		return map[string]interface{}{}, nil
	}

	switch v := raw.(type) {
	case map[string]interface{}:
		return v, nil
	case map[interface{}]interface{}:
		// yaml.v2-style maps; yaml.v3 yields string keys but accept both.
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			ks, ok := key.(string)
			if !ok {
				return nil, &ConfigError{Reason: fmt.Sprintf("non-string parameter key %v", key)}
			}
			out[ks] = val
		}
		return out, nil
	case []interface{}:
		if named, ok := namedPairList(v); ok {
			return named, nil
		}
		out := make(map[string]interface{}, len(v))
		for i, val := range v {
			out[fmt.Sprintf("arg%d", i)] = val
		}
		return out, nil
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported parameter shape %T", raw)}
	}
}

// namedPairList detects the [{"name": ..., "value": ...}] shape. Every
// element must match for the list to count as named pairs.
func namedPairList(items []interface{}) (map[string]interface{}, bool) {
	out := make(map[string]interface{}, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		name, hasName := entry["name"].(string)
		value, hasValue := entry["value"]
		if !hasName || !hasValue || len(entry) != 2 {
			return nil, false
		}
		out[name] = value
	}
	return out, true
}

// NormalizeFileTarget converts the file field into an explicit target.
func NormalizeFileTarget(raw interface{}) (FileTarget, error) {
	switch v := raw.(type) {
	case nil:
		return FileTarget{}, nil
	case string:
		if v == "all" {
			return FileTarget{All: true}, nil
		}
		return FileTarget{Names: []string{v}}, nil
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return FileTarget{}, &ConfigError{Reason: fmt.Sprintf("non-string file target %v", item)}
			}
			names = append(names, name)
		}
		return FileTarget{Names: names}, nil
	case []string:
		return FileTarget{Names: v}, nil
	default:
		return FileTarget{}, &ConfigError{Reason: fmt.Sprintf("unsupported file target shape %T", raw)}
	}
}
