package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_Deterministic(t *testing.T) {
	a := Of([]byte("hello world"))
	b := Of([]byte("hello world"))
	assert.Equal(t, a, b)
}

func TestOf_DiffersForDifferentContent(t *testing.T) {
	a := Of([]byte("foo"))
	b := Of([]byte("bar"))
	assert.NotEqual(t, a, b)
}

func TestOf_FormatIsSixteenLowercaseHex(t *testing.T) {
	tests := [][]byte{
		[]byte(""),
		[]byte("x"),
		[]byte("a much longer piece of content with several words in it"),
	}

	for _, content := range tests {
		got := Of(content)
		require.Len(t, got, 16)
		for _, r := range got {
			assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "unexpected rune %q in %q", r, got)
		}
	}
}

func TestOf_EmptyContentIsStable(t *testing.T) {
	assert.Equal(t, Of(nil), Of([]byte{}))
}
