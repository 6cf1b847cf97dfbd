// Package syncclient implements the client half of the collab protocol:
// authenticate, bootstrap a full snapshot, then run the steady-state
// inbound/outbound poll loop of spec.md §4.7.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/protocol"
	"github.com/vasc-collab/collab/internal/snapshotio"
)

const (
	idleDelay        = 500 * time.Millisecond
	networkRetryWait = 3 * time.Second
	parseRetryWait   = 1 * time.Second

	// backupTimestampLayout matches the original client's YYYYMMDDThhmmss
	// backup directory naming (spec.md §6 / SPEC_FULL.md §4.14).
	backupTimestampLayout = "20060102T150405"
)

// revision is what the client remembers locally about a path between
// steady-state iterations.
type revision struct {
	rev  uint64
	hash string
}

// Client drives one client-side session against a single host.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	targetDir  string
	ignore     *ignorelist.List
	log        *logrus.Entry

	sessionID   uint64
	localRevs   map[string]revision
	mtimes      map[string]time.Time
	hostApplied map[string]bool
	lastSeenRev uint64
	stats       Stats
}

// Options configures a new Client.
type Options struct {
	BaseURL   string // e.g. "http://192.168.1.5:7420"
	Token     string
	TargetDir string
	Ignore    *ignorelist.List
	Logger    *logrus.Logger
}

// New builds a Client ready to Connect.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     opts.BaseURL,
		token:       opts.Token,
		targetDir:   opts.TargetDir,
		ignore:      opts.Ignore,
		log:         logger.WithField("component", "syncclient"),
		localRevs:   make(map[string]revision),
		mtimes:      make(map[string]time.Time),
		hostApplied: make(map[string]bool),
	}
}

// Connect performs /auth and stores the resulting session ID.
func (c *Client) Connect() error {
	req := protocol.AuthRequest{Token: c.token, ProtocolVersion: protocol.ProtocolVersion}
	var resp protocol.AuthResponse
	if err := c.postJSON("/auth", req, &resp); err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("authentication rejected: %s", resp.Error)
	}
	c.sessionID = resp.SessionID
	c.log.WithField("session_id", c.sessionID).Info("authenticated")
	return nil
}

// Bootstrap implements spec.md §4.7's bootstrap phase: fetch the manifest,
// optionally back up the existing target directory, wipe and recreate it,
// download every file (via a small worker pool, SPEC_FULL.md §4.15), and
// seed local_revs/mtimes from the result.
func (c *Client) Bootstrap(backup bool) error {
	var manifest protocol.Manifest
	if err := c.getJSON("/manifest", &manifest); err != nil {
		return fmt.Errorf("fetching manifest: %w", err)
	}

	if backup {
		if _, err := os.Stat(c.targetDir); err == nil {
			dst := filepath.Join(filepath.Dir(c.targetDir), ignorelist.BackupDirName, time.Now().Format(backupTimestampLayout))
			if err := snapshotio.CopyDirAll(c.targetDir, dst); err != nil {
				return fmt.Errorf("backing up target directory: %w", err)
			}
			c.log.WithField("backup_dir", dst).Info("backed up existing target directory")
		}
	}

	if err := os.RemoveAll(c.targetDir); err != nil {
		return fmt.Errorf("removing existing target directory: %w", err)
	}
	if err := os.MkdirAll(c.targetDir, 0o755); err != nil {
		return fmt.Errorf("recreating target directory: %w", err)
	}

	entries, err := c.downloadAll(manifest.Files)
	if err != nil {
		return fmt.Errorf("downloading manifest files: %w", err)
	}

	if err := snapshotio.Apply(c.targetDir, entries); err != nil {
		return fmt.Errorf("applying bootstrap snapshot: %w", err)
	}

	for _, f := range manifest.Files {
		c.localRevs[f.Path] = revision{rev: f.Rev, hash: f.Hash}
	}
	c.lastSeenRev = manifest.HeadRev

	if err := c.rebuildMtimes(); err != nil {
		return fmt.Errorf("building initial mtime cache: %w", err)
	}

	c.log.WithFields(logrus.Fields{"files": len(manifest.Files), "head_rev": manifest.HeadRev}).
		Info("bootstrap complete")
	return nil
}

// downloadAll fans GET /file out across a worker pool bounded by
// runtime.NumCPU() (minimum 4), per SPEC_FULL.md §4.15. Any single download
// error aborts the bootstrap.
func (c *Client) downloadAll(files []protocol.FileEntry) ([]snapshotio.Entry, error) {
	workers := runtime.NumCPU()
	if workers < 4 {
		workers = 4
	}

	pool := pond.New(workers, len(files))

	entries := make([]snapshotio.Entry, len(files))
	errs := make([]error, len(files))

	for i, f := range files {
		i, f := i, f
		pool.Submit(func() {
			var fc protocol.FileContent
			if err := c.getJSON("/file?path="+url.QueryEscape(f.Path), &fc); err != nil {
				errs[i] = fmt.Errorf("downloading %s: %w", f.Path, err)
				return
			}
			entries[i] = snapshotio.Entry{Path: fc.Path, Content: fc.Content}
		})
	}

	pool.StopAndWait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// rebuildMtimes walks the target directory and records each tracked file's
// current modification time.
func (c *Client) rebuildMtimes() error {
	c.mtimes = make(map[string]time.Time)
	return walkForMtimes(c.targetDir, c.targetDir, c.ignore, c.mtimes)
}

// Run executes the steady-state loop until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.inboundPhase()
		c.outboundPhase()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idleDelay):
		}
	}
}

func (c *Client) postJSON(path string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// getBody performs a GET and returns the raw response body, letting the
// caller distinguish a network failure from a decode failure on the same
// call — spec.md §4.7 step 1 gives those two failure modes different
// backoffs.
func (c *Client) getBody(path string) ([]byte, error) {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
