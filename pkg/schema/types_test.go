package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"string", "string"},
		{"int", "int"},
		{"number", "number"},
		{"float", "number"},
		{"boolean", "boolean"},
		{"bool", "boolean"},
		{"object", "object"},
		{"array", "array"},
		{"[string]", "[string]"},
		{"[[int]]", "[[int]]"},
	}
	for _, tc := range cases {
		typ, err := ParseType(tc.in)
		require.NoError(t, err, "ParseType(%q)", tc.in)
		assert.Equal(t, tc.want, typ.Name())
	}

	_, err := ParseType("uuid")
	assert.Error(t, err)
}

func TestIntType_AcceptsWholeFloats(t *testing.T) {
	typ := Int()
	assert.NoError(t, typ.Validate(10))
	assert.NoError(t, typ.Validate(float64(10)))
	assert.Error(t, typ.Validate(10.5))
	assert.Error(t, typ.Validate("10"))
}

func TestNumberType(t *testing.T) {
	typ := Number()
	assert.NoError(t, typ.Validate(10))
	assert.NoError(t, typ.Validate(10.5))
	assert.Error(t, typ.Validate(true))
}

func TestObjectType(t *testing.T) {
	typ := Object()
	assert.NoError(t, typ.Validate(map[string]any{"a": 1}))
	assert.Error(t, typ.Validate([]any{"a"}))
}

func TestArrayType(t *testing.T) {
	untyped := Array()
	assert.NoError(t, untyped.Validate([]any{"a", 1, true}))
	assert.Error(t, untyped.Validate("not an array"))

	typed := ArrayOf(String())
	assert.NoError(t, typed.Validate([]any{"a", "b"}))

	err := typed.Validate([]any{"a", 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
}

func TestCustomType(t *testing.T) {
	positive := Custom("positive", func(v any) error {
		n, ok := v.(float64)
		if !ok || n <= 0 {
			return errors.New("must be a positive number")
		}
		return nil
	})

	assert.Equal(t, "positive", positive.Name())
	assert.NoError(t, positive.Validate(float64(5)))
	assert.Error(t, positive.Validate(float64(-5)))
}
