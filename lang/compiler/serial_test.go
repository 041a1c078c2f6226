package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundtrip(t *testing.T) {
	src := `fun make() { var i = 0; fun c() { i = i + 1; return i; } return c; }
var c = make();
print c();`
	ch := compileSrc(t, src)

	b, err := Marshal(ch)
	require.NoError(t, err)
	assert.Equal(t, []byte("blox"), b[:4])

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, ch.Code, got.Code)
	assert.Equal(t, ch.Lines, got.Lines)
	require.Equal(t, len(ch.Constants), len(got.Constants))

	// nested prototypes survive with their chunks and metadata
	for i, c := range ch.Constants {
		g := got.Constants[i]
		assert.Equal(t, c.Kind, g.Kind)
		if c.Kind == KindFunction {
			require.NotNil(t, g.Fn)
			assert.Equal(t, c.Fn.Name, g.Fn.Name)
			assert.Equal(t, c.Fn.Arity, g.Fn.Arity)
			assert.Equal(t, c.Fn.UpvalueCount, g.Fn.UpvalueCount)
			assert.Equal(t, c.Fn.Chunk.Code, g.Fn.Chunk.Code)
		}
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	_, err := Unmarshal([]byte("nope whatever"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blox")

	_, err = Unmarshal([]byte("bl"))
	require.Error(t, err)

	_, err = Unmarshal(nil)
	require.Error(t, err)
}

func TestIsCompiled(t *testing.T) {
	ch := compileSrc(t, "print 1;")
	b, err := Marshal(ch)
	require.NoError(t, err)

	assert.True(t, IsCompiled(b))
	assert.False(t, IsCompiled([]byte("print 1;")))
	assert.False(t, IsCompiled([]byte("bl")))
}
