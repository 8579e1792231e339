package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat64Slice(t *testing.T) {
	got, ok := ToFloat64Slice([]any{json.Number("1"), 2.5, json.Number("1e3")})
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2.5, 1000}, got)

	_, ok = ToFloat64Slice([]any{json.Number("1"), "x"})
	assert.False(t, ok)

	_, ok = ToFloat64Slice("not an array")
	assert.False(t, ok)
}

func TestToStringSlice(t *testing.T) {
	got, ok := ToStringSlice([]any{"patient", json.Number("7"), true})
	require.True(t, ok)
	assert.Equal(t, []string{"patient", "7", "true"}, got)

	_, ok = ToStringSlice([]any{map[string]any{}})
	assert.False(t, ok)
}

func TestDecodeJSONMap(t *testing.T) {
	m, err := DecodeJSONMap([]byte(`{"response": true, "count": 16}`))
	require.NoError(t, err)
	assert.Equal(t, true, m["response"])
	assert.Equal(t, json.Number("16"), m["count"])

	_, err = DecodeJSONMap([]byte(`{"response": true} {"again": 1}`))
	assert.ErrorContains(t, err, "trailing")

	_, err = DecodeJSONMap([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestCompileSchema(t *testing.T) {
	s, err := CompileSchema("t.json", `{"type": "object", "required": ["a"]}`)
	require.NoError(t, err)
	assert.NoError(t, s.Validate(map[string]any{"a": 1.0}))
	assert.Error(t, s.Validate(map[string]any{}))

	_, err = CompileSchema("bad.json", `{"type": 12}`)
	assert.Error(t, err)
}
