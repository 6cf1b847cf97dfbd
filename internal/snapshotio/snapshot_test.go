package snapshotio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasc-collab/collab/internal/collabstate"
	"github.com/vasc-collab/collab/internal/ignorelist"
)

func makeTempProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.lua"), []byte("print('hello')"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.project.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644))
	return dir
}

func TestBuildFromDir_IncludesExpectedFiles(t *testing.T) {
	dir := makeTempProject(t)
	state := collabstate.New()
	ignore := ignorelist.Parse(ignorelist.HostMandatory, nil)

	require.NoError(t, BuildFromDir(dir, state, ignore))

	state.Mu.Lock()
	m := state.Manifest()
	state.Mu.Unlock()

	var paths []string
	for _, f := range m.Files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, "default.project.json")
	assert.Contains(t, paths, "src/main.lua")
	for _, p := range paths {
		assert.NotContains(t, p, ".git")
	}
}

func TestBuildFromDir_FileHashesAreValid(t *testing.T) {
	dir := makeTempProject(t)
	state := collabstate.New()
	ignore := ignorelist.Parse(ignorelist.HostMandatory, nil)

	require.NoError(t, BuildFromDir(dir, state, ignore))

	state.Mu.Lock()
	defer state.Mu.Unlock()
	m := state.Manifest()
	for _, f := range m.Files {
		assert.Len(t, f.Hash, 16)
		assert.Greater(t, f.Rev, uint64(0))
	}
}

func TestApply_CreatesFiles(t *testing.T) {
	target := t.TempDir()
	entries := []Entry{
		{Path: "src/foo.lua", Content: []byte("return {}")},
		{Path: "src/bar/baz.lua", Content: []byte("return nil")},
	}
	require.NoError(t, Apply(target, entries))

	assert.FileExists(t, filepath.Join(target, "src", "foo.lua"))
	assert.FileExists(t, filepath.Join(target, "src", "bar", "baz.lua"))

	content, err := os.ReadFile(filepath.Join(target, "src", "foo.lua"))
	require.NoError(t, err)
	assert.Equal(t, "return {}", string(content))
}

func TestApply_RejectsTraversal(t *testing.T) {
	target := t.TempDir()
	err := Apply(target, []Entry{{Path: "../escape.txt", Content: []byte("x")}})
	assert.Error(t, err)
}

func TestRoundTrip_BuildThenApplyIsByteIdentical(t *testing.T) {
	dir := makeTempProject(t)
	state := collabstate.New()
	ignore := ignorelist.Parse(ignorelist.HostMandatory, nil)
	require.NoError(t, BuildFromDir(dir, state, ignore))

	state.Mu.Lock()
	m := state.Manifest()
	var entries []Entry
	for _, f := range m.Files {
		fs, ok := state.FileContent(f.Path)
		require.True(t, ok)
		entries = append(entries, Entry{Path: f.Path, Content: fs.Content})
	}
	state.Mu.Unlock()

	target := t.TempDir()
	require.NoError(t, Apply(target, entries))

	original, err := os.ReadFile(filepath.Join(dir, "src", "main.lua"))
	require.NoError(t, err)
	replayed, err := os.ReadFile(filepath.Join(target, "src", "main.lua"))
	require.NoError(t, err)
	assert.Equal(t, original, replayed)
}
