package sandbox

import (
	"strings"

	"gradehouse/pkg/models"
)

// Category classifies the outcome of a sandbox command.
type Category string

const (
	CategorySuccess     Category = "SUCCESS"
	CategoryRuntime     Category = "RUNTIME_ERROR"
	CategoryTimeout     Category = "TIMEOUT"
	CategoryCompilation Category = "COMPILATION_ERROR"
	CategorySystem      Category = "SYSTEM_ERROR"
)

// compilerMarkers appear in stderr for any language when a compile step fails.
var compilerMarkers = []string{"error:", "javac", "g++"}

// runtimeMarkers are language-specific stderr signatures of a crash.
var runtimeMarkers = map[models.Language][]string{
	models.LangPython: {"Traceback"},
	models.LangJava:   {"Exception in thread", "java.lang."},
	models.LangNode:   {"ReferenceError:", "TypeError:", "Uncaught"},
	models.LangCpp:    {"segmentation fault", "core dumped"},
}

// Classify maps a command outcome to an error category. Rules are
// ordered: exit 0 wins, 137 is the kill/OOM convention, compiler
// markers beat runtime markers, anything else is a system error.
func Classify(stdout, stderr string, exitCode int, lang models.Language) Category {
	if exitCode == 0 {
		return CategorySuccess
	}
	if exitCode == 137 {
		return CategoryTimeout
	}
	lowered := strings.ToLower(stderr)
	for _, marker := range compilerMarkers {
		if strings.Contains(lowered, marker) {
			return CategoryCompilation
		}
	}
	for _, marker := range runtimeMarkers[lang] {
		if strings.Contains(stderr, marker) || strings.Contains(lowered, strings.ToLower(marker)) {
			return CategoryRuntime
		}
	}
	return CategorySystem
}
