package canonjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	out, err := Canonicalize([]byte(`{"b":1,"a":2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(out))
}

func TestCanonicalizeStripsWhitespace(t *testing.T) {
	out, err := Canonicalize([]byte(`{
		"a": 1,
		"b": [1, 2, 3]
	}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":[1,2,3]}`, string(out))
}

func TestCanonicalizeSortsNestedObjects(t *testing.T) {
	out, err := Canonicalize([]byte(`{"outer":{"z":1,"a":2},"first":true}`))
	require.NoError(t, err)
	assert.Equal(t, `{"first":true,"outer":{"a":2,"z":1}}`, string(out))
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	first, err := Canonicalize([]byte(`{"b":{"y":2,"x":1},"a":[3,2,1]}`))
	require.NoError(t, err)
	second, err := Canonicalize(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCanonicalizePreservesNumberFormatting(t *testing.T) {
	out, err := Canonicalize([]byte(`{"a":1.50,"b":100}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1.50,"b":100}`, string(out))
}

func TestMarshalProducesCanonicalOutput(t *testing.T) {
	type payload struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	out, err := Marshal(payload{B: 2, A: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestCanonicalizeRejectsInvalidJSON(t *testing.T) {
	_, err := Canonicalize([]byte(`{not json`))
	assert.Error(t, err)
}
