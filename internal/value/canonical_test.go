package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysByUTF16(t *testing.T) {
	// U+E000 sorts before U+1F600 in UTF-8 but after it in UTF-16
	// (the emoji encodes as the surrogate 0xD83D).
	obj := Object{
		"\uE000":     Int(1),
		"\U0001F600": Int(2),
		"a":          Int(3),
	}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":3,\"\U0001F600\":2,\"\uE000\":1}", string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_NFCNormalizes(t *testing.T) {
	decomposed := String("e\u0301")
	composed := String("\u00e9")
	assert.Equal(t, MustMarshalCanonical(composed), MustMarshalCanonical(decomposed))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	got, err = MarshalCanonical(String(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshalCanonical_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null{}, "null"},
		{"int", Int(-42), "-42"},
		{"decimal", MustDecimal("3.140"), "3.14"},
		{"true", Bool(true), "true"},
		{"array", Array{Int(1), Null{}, String("x")}, `[1,null,"x"]`},
		{"empty object", Object{}, "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(MustMarshalCanonical(tt.in)))
		})
	}
}

func TestMarshalIndent(t *testing.T) {
	got, err := MarshalIndent(Object{"b": Int(2), "a": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": 2\n}", got)
}

func TestVersionHash_BindsPosition(t *testing.T) {
	snap := Object{"a": Int(1)}
	h1 := MustVersionHash("doc-1", 1, snap)
	h2 := MustVersionHash("doc-1", 2, snap)
	h3 := MustVersionHash("doc-2", 1, snap)

	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, h1, MustVersionHash("doc-1", 1, Object{"a": MustDecimal("1.0")}))
}

func TestDefinitionHash_Stable(t *testing.T) {
	a, err := DefinitionHash(Object{"x": Int(1), "y": String("z")})
	require.NoError(t, err)
	b, err := DefinitionHash(Object{"y": String("z"), "x": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
