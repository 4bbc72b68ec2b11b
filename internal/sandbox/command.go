package sandbox

import (
	"fmt"
	"strings"

	"gradehouse/pkg/models"
)

// autoCommand is the literal a rubric uses to request language-based
// command derivation.
const autoCommand = "CMD"

// ResolveCommand turns a rubric's program_command parameter into a
// concrete shell command for the submission's language.
//
// Accepted shapes:
//   - a plain string, used as-is (legacy rubrics);
//   - the literal "CMD", auto-derived from language and fallback file;
//   - a map of language to command, looked up case-insensitively.
//
// A map miss or an unusable shape resolves to "".
func ResolveCommand(raw interface{}, lang models.Language, fallbackFile string) string {
	switch v := raw.(type) {
	case string:
		if v == autoCommand {
			return autoResolve(lang, fallbackFile)
		}
		return v
	case map[string]interface{}:
		for key, val := range v {
			if !strings.EqualFold(key, string(lang)) {
				continue
			}
			if cmd, ok := val.(string); ok {
				if cmd == autoCommand {
					return autoResolve(lang, fallbackFile)
				}
				return cmd
			}
		}
		return ""
	case map[string]string:
		for key, cmd := range v {
			if strings.EqualFold(key, string(lang)) {
				if cmd == autoCommand {
					return autoResolve(lang, fallbackFile)
				}
				return cmd
			}
		}
		return ""
	default:
		return ""
	}
}

// autoResolve derives the run command from the language and an optional
// entry file. With no file, each language falls back to its
// conventional entry point.
func autoResolve(lang models.Language, file string) string {
	switch lang {
	case models.LangPython:
		if file == "" {
			file = "main.py"
		}
		return fmt.Sprintf("python3 %s", file)
	case models.LangJava:
		if file == "" {
			return "java Main"
		}
		return fmt.Sprintf("java %s", strings.TrimSuffix(file, ".java"))
	case models.LangNode:
		if file == "" {
			file = "main.js"
		}
		return fmt.Sprintf("node %s", file)
	case models.LangCpp:
		if file == "" {
			return "./main"
		}
		return fmt.Sprintf("./%s", strings.TrimSuffix(file, ".cpp"))
	default:
		return ""
	}
}
