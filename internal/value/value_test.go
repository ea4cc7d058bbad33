package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_IntegersStayIntegral(t *testing.T) {
	v, err := Parse([]byte(`{"id": 9007199254740993, "ratio": 0.5, "tags": ["a", null]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Int(9007199254740993), obj["id"])
	assert.Equal(t, Float(0.5), obj["ratio"])
	assert.Equal(t, Array{String("a"), Null{}}, obj["tags"])
}

func TestClone_DoesNotAlias(t *testing.T) {
	orig := NewObject(O("list", NewArray(Int(1), Int(2))), O("nested", NewObject(O("k", String("v")))))

	cp := Clone(orig).(Object)
	cp["list"].(Array)[0] = Int(99)
	cp["nested"].(Object)["k"] = String("changed")

	assert.Equal(t, Int(1), orig["list"].(Array)[0])
	assert.Equal(t, String("v"), orig["nested"].(Object)["k"])
}

func TestClone_NilContainersAreWritable(t *testing.T) {
	obj := Clone(Object(nil)).(Object)
	require.NotNil(t, obj)
	obj["k"] = Int(1)

	arr := Clone(Array(nil)).(Array)
	require.NotNil(t, arr)
	assert.Empty(t, arr)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"both absent", nil, nil, true},
		{"absent vs null", nil, Null{}, false},
		{"int vs float same", Int(3), Float(3), true},
		{"int vs int", Int(3), Int(4), false},
		{"string", String("a"), String("a"), true},
		{"string vs number", String("1"), Int(1), false},
		{"arrays", NewArray(Int(1), String("x")), NewArray(Int(1), String("x")), true},
		{"array order", NewArray(Int(1), Int(2)), NewArray(Int(2), Int(1)), false},
		{"objects", MustParse(`{"a":{"b":[1,2]}}`), MustParse(`{"a":{"b":[1,2]}}`), true},
		{"object missing key", MustParse(`{"a":1}`), MustParse(`{"b":1}`), false},
		{"object null vs absent", MustParse(`{"a":null}`), MustParse(`{}`), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestFromNative_YAMLShapes(t *testing.T) {
	v, err := FromNative(map[string]any{
		"count": 3,
		"score": 1.5,
		"whole": 2.0,
		"inner": map[any]any{"ok": true},
	})
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(3), obj["count"])
	assert.Equal(t, Float(1.5), obj["score"])
	assert.Equal(t, Int(2), obj["whole"])
	assert.Equal(t, NewObject(O("ok", Bool(true))), obj["inner"])
}

func TestToNative_RoundTrip(t *testing.T) {
	orig := MustParse(`{"a":[1,"two",true,null],"b":{"c":2.5}}`)
	back, err := FromNative(ToNative(orig))
	require.NoError(t, err)
	assert.True(t, Equal(orig, back))
}

func TestMarshal_SortedKeys(t *testing.T) {
	b, err := Marshal(MustParse(`{"b":1,"a":[true,null]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null],"b":1}`, string(b))
}

func TestMarshalCanonical(t *testing.T) {
	t.Run("no html escaping", func(t *testing.T) {
		b, err := MarshalCanonical(String("<a&b>"))
		require.NoError(t, err)
		assert.Equal(t, `"<a&b>"`, string(b))
	})

	t.Run("nfc normalization", func(t *testing.T) {
		decomposed, err := MarshalCanonical(String("e\u0301"))
		require.NoError(t, err)
		composed, err := MarshalCanonical(String("\u00e9"))
		require.NoError(t, err)
		assert.Equal(t, composed, decomposed)
	})

	t.Run("integral float", func(t *testing.T) {
		b, err := MarshalCanonical(Float(4))
		require.NoError(t, err)
		assert.Equal(t, "4", string(b))
	})

	t.Run("absent rejected", func(t *testing.T) {
		_, err := MarshalCanonical(nil)
		assert.Error(t, err)
	})
}

func TestDigest_StableAcrossKeyOrder(t *testing.T) {
	a, err := Digest(DomainDocument, MustParse(`{"x":1,"y":[1,2]}`))
	require.NoError(t, err)
	b, err := Digest(DomainDocument, MustParse(`{"y":[1,2],"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Digest(DomainTransform, MustParse(`{"x":1,"y":[1,2]}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "domain separation")
}
