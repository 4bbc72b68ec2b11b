package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gradehouse/pkg/models"
)

func TestResolveCommand(t *testing.T) {
	tests := []struct {
		name     string
		raw      interface{}
		lang     models.Language
		fallback string
		want     string
	}{
		{
			name: "plain string passes through",
			raw:  "python3 solution.py",
			lang: models.LangPython,
			want: "python3 solution.py",
		},
		{
			name: "CMD auto-derives for python",
			raw:  "CMD",
			lang: models.LangPython,
			want: "python3 main.py",
		},
		{
			name:     "CMD uses the fallback file",
			raw:      "CMD",
			lang:     models.LangPython,
			fallback: "app.py",
			want:     "python3 app.py",
		},
		{
			name: "CMD for java defaults to Main",
			raw:  "CMD",
			lang: models.LangJava,
			want: "java Main",
		},
		{
			name:     "CMD for java strips extension",
			raw:      "CMD",
			lang:     models.LangJava,
			fallback: "App.java",
			want:     "java App",
		},
		{
			name: "CMD for node",
			raw:  "CMD",
			lang: models.LangNode,
			want: "node main.js",
		},
		{
			name: "CMD for cpp runs the binary",
			raw:  "CMD",
			lang: models.LangCpp,
			want: "./main",
		},
		{
			name: "language map picks matching entry",
			raw: map[string]interface{}{
				"python": "python3 -u main.py",
				"java":   "java Main",
			},
			lang: models.LangPython,
			want: "python3 -u main.py",
		},
		{
			name: "language map keys match case-insensitively",
			raw: map[string]interface{}{
				"PYTHON": "python3 run.py",
			},
			lang: models.LangPython,
			want: "python3 run.py",
		},
		{
			name: "language map entry may itself be CMD",
			raw: map[string]string{
				"node": "CMD",
			},
			lang: models.LangNode,
			want: "node main.js",
		},
		{
			name: "language map miss resolves empty",
			raw: map[string]interface{}{
				"java": "java Main",
			},
			lang: models.LangPython,
			want: "",
		},
		{
			name: "unusable shape resolves empty",
			raw:  42,
			lang: models.LangPython,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCommand(tt.raw, tt.lang, tt.fallback)
			assert.Equal(t, tt.want, got)
		})
	}
}
