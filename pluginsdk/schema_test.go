package pluginsdk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflectSchemaProviderNilValue(t *testing.T) {
	t.Parallel()
	p := NewReflectSchemaProvider()
	raw, err := p.Schema(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(raw))
}

func TestReflectSchemaProviderStruct(t *testing.T) {
	t.Parallel()
	p := NewReflectSchemaProvider()

	type args struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	raw, err := p.Schema(args{})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "n")
}

func TestCompileValidatorAcceptsMatchingArguments(t *testing.T) {
	t.Parallel()
	schemaDoc := json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
	v, err := CompileValidator(schemaDoc, "mem://test-schema")
	require.NoError(t, err)

	assert.NoError(t, v.Validate(json.RawMessage(`{"name":"ok"}`)))
	assert.Error(t, v.Validate(json.RawMessage(`{}`)))
}

func TestNilValidatorAlwaysValidates(t *testing.T) {
	t.Parallel()
	var v *Validator
	assert.NoError(t, v.Validate(json.RawMessage(`{"anything":1}`)))
}

func TestCompileValidatorRejectsMalformedSchema(t *testing.T) {
	t.Parallel()
	_, err := CompileValidator(json.RawMessage(`not json`), "mem://bad-schema")
	assert.Error(t, err)
}
