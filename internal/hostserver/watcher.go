package hostserver

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vasc-collab/collab/internal/collabstate"
	"github.com/vasc-collab/collab/internal/fingerprint"
	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/pathutil"
)

// watchInterval is the fixed poll cadence of spec.md §4.6.
const watchInterval = 1 * time.Second

// WatchProjectDir polls the project directory every watchInterval for
// content changes made directly on disk (outside of /propose) and injects
// them into state with fromSession=nil. It runs until ctx is canceled.
//
// Echo suppression: when the host service itself wrote a file (via
// /propose), the on-disk content already matches the in-memory hash, so the
// watcher's hash-equality check silently skips it instead of re-broadcasting
// the client's own change back at it.
func (s *Server) WatchProjectDir(ctx context.Context) {
	mtimes := make(map[string]time.Time)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanForChanges(s.projectDir, s.projectDir, s.ignore, mtimes, s.state, s.log)
		}
	}
}

func scanForChanges(root, dir string, ignore *ignorelist.List, mtimes map[string]time.Time, state *collabstate.State, log *logrus.Entry) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if ignore.Matches(name) {
			continue
		}

		path := filepath.Join(dir, name)

		if entry.IsDir() {
			scanForChanges(root, path, ignore, mtimes, state, log)
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		relSlash := pathutil.ToSlash(rel)

		mtime := info.ModTime()
		if prev, ok := mtimes[relSlash]; ok && prev.Equal(mtime) {
			continue
		}
		mtimes[relSlash] = mtime

		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		newHash := fingerprint.Of(content)

		state.Mu.Lock()
		existingHash, tracked := state.FileHash(relSlash)
		if tracked && existingHash == newHash {
			state.Mu.Unlock()
			continue
		}
		state.ApplyChange(relSlash, content, nil)
		state.Mu.Unlock()

		log.WithField("path", relSlash).Info("host file changed on disk")
	}
}
