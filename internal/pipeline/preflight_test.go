package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"gradehouse/internal/sandbox"
)

func TestLanguagePreflightYAMLShapes(t *testing.T) {
	doc := `
required_files:
  - main.py
setup_commands:
  - pip install -r requirements.txt
  - name: build
    command: make all
`
	var checks LanguagePreflight
	require.NoError(t, yaml.Unmarshal([]byte(doc), &checks))

	assert.Equal(t, []string{"main.py"}, checks.RequiredFiles)
	require.Len(t, checks.SetupCommands, 2)
	assert.Equal(t, "pip install -r requirements.txt", checks.SetupCommands[0].Command)
	assert.Empty(t, checks.SetupCommands[0].Name)
	assert.Equal(t, "build", checks.SetupCommands[1].Name)
	assert.Equal(t, "make all", checks.SetupCommands[1].Command)
}

func TestLanguagePreflightJSONShapes(t *testing.T) {
	doc := `{
		"setup_commands": [
			"npm ci",
			{"name": "lint", "command": "npm run lint"}
		]
	}`
	var checks LanguagePreflight
	require.NoError(t, json.Unmarshal([]byte(doc), &checks))

	require.Len(t, checks.SetupCommands, 2)
	assert.Equal(t, "npm ci", checks.SetupCommands[0].Command)
	assert.Equal(t, "lint", checks.SetupCommands[1].Name)
	assert.Equal(t, "npm run lint", checks.SetupCommands[1].Command)
}

func TestSetupCommandRecordNeedsCommand(t *testing.T) {
	var checks LanguagePreflight
	assert.Error(t, yaml.Unmarshal([]byte("setup_commands:\n  - name: broken\n"), &checks))
	assert.Error(t, json.Unmarshal([]byte(`{"setup_commands": [{"name": "broken"}]}`), &checks))
}

func TestSetupCommandLabel(t *testing.T) {
	assert.Equal(t, "make", SetupCommand{Command: "make"}.Label())
	assert.Equal(t, "build", SetupCommand{Name: "build", Command: "make"}.Label())
}

func TestSetupErrorNamesTheCommand(t *testing.T) {
	err := &SetupError{
		Name:    "deps",
		Command: "pip install -r requirements.txt",
		Output:  sandbox.CommandOutput{Category: sandbox.CategoryRuntime, ExitCode: 1, Stderr: "no such package"},
	}
	assert.Contains(t, err.Error(), `"deps"`)
	assert.Contains(t, err.Error(), "no such package")

	unnamed := &SetupError{
		Command: "make",
		Output:  sandbox.CommandOutput{Category: sandbox.CategoryRuntime, ExitCode: 2},
	}
	assert.Contains(t, unnamed.Error(), `"make"`)
}
