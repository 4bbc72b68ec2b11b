package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONAndYAML(t *testing.T) {
	jsonDoc := []byte(`{
		"test_library": "io-basic",
		"base": {
			"weight": 100,
			"tests": [{"name": "io_match", "weight": 50}]
		}
	}`)
	cfg, err := Parse(jsonDoc)
	require.NoError(t, err)
	assert.Equal(t, "io-basic", cfg.TestLibrary)
	require.NotNil(t, cfg.Base)
	assert.Equal(t, 50.0, cfg.Base.Tests[0].Weight)

	yamlDoc := []byte(`
test_library: io-basic
base:
  weight: 100
  subjects:
    - subject_name: correctness
      weight: 70
      tests:
        - name: io_match
          file: main.py
`)
	cfg, err = Parse(yamlDoc)
	require.NoError(t, err)
	require.Len(t, cfg.Base.Subjects, 1)
	assert.Equal(t, "correctness", cfg.Base.Subjects[0].SubjectName)
	assert.Equal(t, "main.py", cfg.Base.Subjects[0].Tests[0].File)
}

func TestParseMalformed(t *testing.T) {
	_, err := ParseJSON([]byte(`{"base": `))
	assert.Error(t, err)

	_, err = Parse([]byte("\t{not valid either way"))
	assert.Error(t, err)
}

func TestNormalizeParameters(t *testing.T) {
	t.Run("nil yields empty map", func(t *testing.T) {
		params, err := NormalizeParameters(nil)
		require.NoError(t, err)
		assert.Empty(t, params)
	})

	t.Run("named mapping passes through", func(t *testing.T) {
		params, err := NormalizeParameters(map[string]interface{}{"timeout": 5})
		require.NoError(t, err)
		assert.Equal(t, 5, params["timeout"])
	})

	t.Run("name value pair list becomes mapping", func(t *testing.T) {
		params, err := NormalizeParameters([]interface{}{
			map[string]interface{}{"name": "expected_output", "value": "42"},
			map[string]interface{}{"name": "strict", "value": true},
		})
		require.NoError(t, err)
		assert.Equal(t, "42", params["expected_output"])
		assert.Equal(t, true, params["strict"])
	})

	t.Run("positional list binds to argN", func(t *testing.T) {
		params, err := NormalizeParameters([]interface{}{"a", 2, false})
		require.NoError(t, err)
		assert.Equal(t, "a", params["arg0"])
		assert.Equal(t, 2, params["arg1"])
		assert.Equal(t, false, params["arg2"])
	})

	t.Run("pair list with extra keys is positional", func(t *testing.T) {
		params, err := NormalizeParameters([]interface{}{
			map[string]interface{}{"name": "x", "value": 1, "extra": 2},
		})
		require.NoError(t, err)
		_, isPositional := params["arg0"]
		assert.True(t, isPositional)
	})

	t.Run("unsupported shape errors", func(t *testing.T) {
		_, err := NormalizeParameters(42)
		assert.Error(t, err)
	})
}

func TestNormalizeFileTarget(t *testing.T) {
	target, err := NormalizeFileTarget(nil)
	require.NoError(t, err)
	assert.False(t, target.All)
	assert.Empty(t, target.Names)

	target, err = NormalizeFileTarget("all")
	require.NoError(t, err)
	assert.True(t, target.All)

	target, err = NormalizeFileTarget("main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, target.Names)

	target, err = NormalizeFileTarget([]interface{}{"a.py", "b.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, target.Names)

	_, err = NormalizeFileTarget([]interface{}{"a.py", 7})
	assert.Error(t, err)

	_, err = NormalizeFileTarget(3.14)
	assert.Error(t, err)
}
