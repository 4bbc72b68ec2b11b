package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"gradehouse/internal/sandbox"
	"gradehouse/pkg/models"
)

// LanguagePreflight declares what must hold before grading starts for
// one language: files the submission must contain and commands to run
// in the sandbox first (dependency install, build prep).
type LanguagePreflight struct {
	RequiredFiles []string       `json:"required_files" yaml:"required_files"`
	SetupCommands []SetupCommand `json:"setup_commands" yaml:"setup_commands"`
}

// SetupCommand is one preflight shell command. Config accepts either a
// bare command string or a record with a display name:
//
//	setup_commands:
//	  - pip install -r requirements.txt
//	  - name: build
//	    command: make
type SetupCommand struct {
	Name    string `json:"name" yaml:"name"`
	Command string `json:"command" yaml:"command"`
}

func (c *SetupCommand) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&c.Command)
	}
	type plain SetupCommand
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Command == "" {
		return fmt.Errorf("setup command %q has an empty command", p.Name)
	}
	*c = SetupCommand(p)
	return nil
}

func (c *SetupCommand) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Command)
	}
	type plain SetupCommand
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Command == "" {
		return fmt.Errorf("setup command %q has an empty command", p.Name)
	}
	*c = SetupCommand(p)
	return nil
}

// Label names the command in logs and errors, preferring the explicit
// name over the command text.
func (c SetupCommand) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Command
}

// PreflightConfig maps languages to their checks. Languages without an
// entry get no checks.
type PreflightConfig map[models.Language]LanguagePreflight

// MissingFilesError reports every required file the submission lacks,
// not just the first, so one resubmission can fix them all.
type MissingFilesError struct {
	Files []string
}

func (e *MissingFilesError) Error() string {
	return fmt.Sprintf("submission is missing required file(s): %s", strings.Join(e.Files, ", "))
}

// SetupError reports a setup command that did not succeed, with the
// full classified output for diagnosis.
type SetupError struct {
	Name    string
	Command string
	Output  sandbox.CommandOutput
}

func (e *SetupError) Error() string {
	label := e.Command
	if e.Name != "" {
		label = e.Name
	}
	return fmt.Sprintf("setup command %q failed (%s, exit %d): %s",
		label, e.Output.Category, e.Output.ExitCode, strings.TrimSpace(e.Output.Stderr))
}
