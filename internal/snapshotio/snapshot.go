// Package snapshotio walks a project directory into collabstate.State (or
// the reverse: materializes state back onto disk). The walk here serves the
// host's initial load only; the host watcher and the client's local scan
// each run their own walk over the same ignorelist.List, with their own
// change detection.
package snapshotio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vasc-collab/collab/internal/collabstate"
	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/pathutil"
)

// BuildFromDir walks root depth-first, skipping any entry whose basename
// matches ignore, and registers every regular file into state via
// ApplyChange with fromSession=nil. It returns an error if a directory or
// file cannot be read.
//
// State's lock is held for the whole walk: this only ever runs once, at
// host startup, before any client can connect.
func BuildFromDir(root string, state *collabstate.State, ignore *ignorelist.List) error {
	state.Mu.Lock()
	defer state.Mu.Unlock()

	return walkDir(root, root, ignore, func(rel string, content []byte) {
		state.ApplyChange(rel, content, nil)
	})
}

func walkDir(root, dir string, ignore *ignorelist.List, register func(rel string, content []byte)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if ignore.Matches(name) {
			continue
		}

		path := filepath.Join(dir, name)

		if entry.IsDir() {
			if err := walkDir(root, path, ignore, register); err != nil {
				return err
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", path, err)
		}
		relSlash := pathutil.ToSlash(rel)

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file %s: %w", path, err)
		}

		register(relSlash, content)
	}
	return nil
}

// Entry is a single (relative path, content) pair, as downloaded from the
// host or produced by a local scan.
type Entry struct {
	Path    string
	Content []byte
}

// Apply materializes entries onto disk under target, creating any missing
// parent directories. It never deletes pre-existing files — the caller is
// responsible for wiping target first if a clean mirror is required (the
// client's join bootstrap does this; the host's own writes never call this).
func Apply(target string, entries []Entry) error {
	for _, e := range entries {
		dest, err := pathutil.SafeJoin(target, e.Path)
		if err != nil {
			return fmt.Errorf("unsafe path %q: %w", e.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating dirs for %s: %w", dest, err)
		}
		if err := os.WriteFile(dest, e.Content, 0o644); err != nil {
			return fmt.Errorf("writing file %s: %w", dest, err)
		}
	}
	return nil
}
