package syncclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vasc-collab/collab/internal/fingerprint"
	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/pathutil"
	"github.com/vasc-collab/collab/internal/protocol"
)

// inboundPhase implements spec.md §4.7 step 1: pull everything the host has
// committed since lastSeenRev and apply it locally. A network failure and a
// parse failure get distinct backoffs, matching the original client.
func (c *Client) inboundPhase() {
	body, err := c.getBody(fmt.Sprintf("/changes?since_rev=%d", c.lastSeenRev))
	if err != nil {
		c.log.WithError(err).Warn("inbound poll failed, retrying after backoff")
		time.Sleep(networkRetryWait)
		return
	}

	var batch protocol.ChangesBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		c.log.WithError(err).Warn("inbound poll response unparseable, retrying after backoff")
		time.Sleep(parseRetryWait)
		return
	}

	for _, entry := range batch.Entries {
		dest, err := pathutil.SafeJoin(c.targetDir, entry.Path)
		if err != nil {
			c.log.WithError(err).WithField("path", entry.Path).Warn("rejecting unsafe inbound path")
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			c.log.WithError(err).WithField("path", entry.Path).Warn("failed to create parent dir for inbound write")
			continue
		}
		if err := os.WriteFile(dest, entry.Content, 0o644); err != nil {
			c.log.WithError(err).WithField("path", entry.Path).Warn("failed to write inbound file")
			continue
		}

		c.localRevs[entry.Path] = revision{rev: entry.Rev, hash: entry.Hash}
		c.hostApplied[entry.Path] = true
		c.stats.FilesReceived++

		if info, err := os.Stat(dest); err == nil {
			c.mtimes[entry.Path] = info.ModTime()
		}
	}

	c.lastSeenRev = batch.HeadRev
}

// outboundPhase implements spec.md §4.7 step 2: find locally changed files
// and propose them, reconciling on conflict. The mtime cache for a path is
// only advanced once its new content has actually been handled (accepted,
// reconciled, or recognized as an echo); a failed propose leaves the old
// mtime in place so the next scan picks the edit back up instead of losing
// it to a stale cache entry.
func (c *Client) outboundPhase() {
	changed := make(map[string]changedFile)
	if err := scanForChangedFiles(c.targetDir, c.targetDir, c.ignore, c.mtimes, changed); err != nil {
		c.log.WithError(err).Warn("outbound scan failed")
		return
	}

	for path, cf := range changed {
		if c.hostApplied[path] {
			delete(c.hostApplied, path)
			c.mtimes[path] = cf.mtime
			continue
		}

		newHash := fingerprint.Of(cf.content)
		if prev, ok := c.localRevs[path]; ok && prev.hash == newHash {
			c.mtimes[path] = cf.mtime
			continue
		}

		baseRev := uint64(0)
		if prev, ok := c.localRevs[path]; ok {
			baseRev = prev.rev
		}

		c.propose(path, baseRev, cf.content, newHash, cf.mtime)
	}
}

// propose submits a local edit. On acceptance it advances the mtime cache to
// the mtime the edit was read at. On conflict it reconciles with the host's
// authoritative content, which stamps its own mtime after the rewrite. On a
// network failure it leaves the mtime cache untouched so the edit is picked
// up again on the next scan instead of being silently dropped.
func (c *Client) propose(path string, baseRev uint64, content []byte, newHash string, mtime time.Time) {
	c.stats.FilesProposed++

	req := protocol.ChangeProposal{SessionID: c.sessionID, Path: path, BaseRev: baseRev, Content: content}
	var result protocol.ChangeResult
	if err := c.postJSON("/propose", req, &result); err != nil {
		c.log.WithError(err).WithField("path", path).Warn("propose failed, will retry next iteration")
		return
	}

	if result.Accepted {
		c.localRevs[path] = revision{rev: result.NewRev, hash: newHash}
		c.mtimes[path] = mtime
		c.stats.FilesAccepted++
		return
	}

	c.log.WithFields(logrus.Fields{"path": path, "error": result.Error}).
		Warn("proposal rejected, reconciling with authoritative content")
	c.reconcile(path)
	c.stats.FilesReconciled++
}

// reconcile fetches the authoritative content for path and overwrites the
// local copy, per spec.md §4.7's conflict handling.
func (c *Client) reconcile(path string) {
	var fc protocol.FileContent
	if err := c.getJSON("/file?path="+url.QueryEscape(path), &fc); err != nil {
		c.log.WithError(err).WithField("path", path).Warn("failed to refetch authoritative content")
		return
	}

	dest, err := pathutil.SafeJoin(c.targetDir, path)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Warn("rejecting unsafe reconcile path")
		return
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		c.log.WithError(err).WithField("path", path).Warn("failed to create parent dir while reconciling")
		return
	}
	if err := os.WriteFile(dest, fc.Content, 0o644); err != nil {
		c.log.WithError(err).WithField("path", path).Warn("failed to write reconciled content")
		return
	}

	c.localRevs[path] = revision{rev: fc.Rev, hash: fc.Hash}
	c.hostApplied[path] = true
	if info, err := os.Stat(dest); err == nil {
		c.mtimes[path] = info.ModTime()
	}
}

// walkForMtimes populates mtimes with every tracked regular file's current
// modification time, used to seed the cache right after bootstrap.
func walkForMtimes(root, dir string, ignore *ignorelist.List, mtimes map[string]time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if ignore.Matches(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := walkForMtimes(root, path, ignore, mtimes); err != nil {
				return err
			}
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
		mtimes[pathutil.ToSlash(rel)] = info.ModTime()
	}
	return nil
}

// changedFile is a candidate outbound edit: its content as read off disk and
// the mtime it was read at. The mtime is not committed to the shared cache
// until outboundPhase knows how the edit was resolved.
type changedFile struct {
	content []byte
	mtime   time.Time
}

// scanForChangedFiles walks dir looking for regular files whose modification
// time differs from the cached value in mtimes and reads their new content
// into changed. It does not mutate mtimes itself — the caller decides when a
// path's cached mtime may advance.
func scanForChangedFiles(root, dir string, ignore *ignorelist.List, mtimes map[string]time.Time, changed map[string]changedFile) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if ignore.Matches(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := scanForChangedFiles(root, path, ignore, mtimes, changed); err != nil {
				return err
			}
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

		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		changed[relSlash] = changedFile{content: content, mtime: mtime}
	}
	return nil
}
