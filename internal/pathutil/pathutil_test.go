package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSlash_Idempotent(t *testing.T) {
	assert.Equal(t, "src/a.lua", ToSlash("src/a.lua"))
	assert.Equal(t, "src/a.lua", ToSlash(`src\a.lua`))
	assert.Equal(t, "a/b/c.txt", ToSlash(`a\b\c.txt`))
}

func TestSafeJoin_RejectsEscape(t *testing.T) {
	root := t.TempDir()

	_, err := SafeJoin(root, "../outside.txt")
	assert.Error(t, err)

	_, err = SafeJoin(root, "../../etc/passwd")
	assert.Error(t, err)

	_, err = SafeJoin(root, "/etc/passwd")
	assert.Error(t, err)
}

func TestSafeJoin_AllowsNestedPaths(t *testing.T) {
	root := t.TempDir()

	dest, err := SafeJoin(root, "src/a.lua")
	require.NoError(t, err)
	assert.Contains(t, dest, "src")
	assert.Contains(t, dest, "a.lua")
}

func TestSafeJoin_RejectsEmpty(t *testing.T) {
	root := t.TempDir()
	_, err := SafeJoin(root, "")
	assert.Error(t, err)
}
