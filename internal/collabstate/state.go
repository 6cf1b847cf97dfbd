// Package collabstate holds the host's authoritative in-memory record of
// tracked files, the global change log, and the session registry. Every
// mutation goes through ApplyChange, which is the sole primitive that keeps
// spec.md §3's invariants (hash matches content, global_seq contiguous,
// per-path rev strictly increasing, log tail matches file state) in sync.
//
// Callers are responsible for taking Mu before touching State and for never
// holding it across blocking I/O — see hostserver for how that split is
// enforced in practice.
package collabstate

import (
	"sort"
	"sync"
	"time"

	"github.com/vasc-collab/collab/internal/fingerprint"
	"github.com/vasc-collab/collab/internal/protocol"
)

// FileState is the host's current record for one tracked path.
type FileState struct {
	Rev     uint64
	Hash    string
	Content []byte
}

// ChangeRecord is one append-only entry in the change log.
type ChangeRecord struct {
	GlobalSeq   uint64
	Path        string
	Content     []byte
	Rev         uint64
	Hash        string
	FromSession *uint64 // nil means the host's own filesystem
}

// SessionInfo is the host-side bookkeeping kept per authenticated session.
// None of these fields participate in any protocol invariant, and nothing
// in the module reads them back or logs them.
type SessionInfo struct {
	ID          uint64
	ConnectedAt time.Time
	LastSeenRev uint64
}

// State is the authoritative collaboration state held by the host.
type State struct {
	Mu sync.Mutex

	files         map[string]*FileState
	globalSeq     uint64
	changeLog     []ChangeRecord
	sessions      map[uint64]*SessionInfo
	nextSessionID uint64
}

// New returns an empty State, ready for a snapshot walk or live traffic.
func New() *State {
	return &State{
		files:         make(map[string]*FileState),
		sessions:      make(map[uint64]*SessionInfo),
		nextSessionID: 1,
	}
}

// AddSession allocates and registers a new session ID. Caller must hold Mu.
func (s *State) AddSession() uint64 {
	id := s.nextSessionID
	s.nextSessionID++
	s.sessions[id] = &SessionInfo{ID: id, ConnectedAt: time.Now()}
	return id
}

// RemoveSession removes a session if present. Idempotent. Caller must hold Mu.
func (s *State) RemoveSession(id uint64) {
	delete(s.sessions, id)
}

// HasSession reports whether id is a currently registered session. Caller
// must hold Mu.
func (s *State) HasSession(id uint64) bool {
	_, ok := s.sessions[id]
	return ok
}

// NoteSessionPoll stores sinceRev as the session's LastSeenRev, best effort:
// an unknown id is ignored. The /propose handler is its only caller and
// passes the global sequence right after the session's accepted change;
// /changes requests carry no session id and leave LastSeenRev untouched.
// Caller must hold Mu.
func (s *State) NoteSessionPoll(id uint64, sinceRev uint64) {
	if info, ok := s.sessions[id]; ok {
		info.LastSeenRev = sinceRev
	}
}

// FileRev returns the current revision for path, or 0 if untracked. Caller
// must hold Mu.
func (s *State) FileRev(path string) uint64 {
	if fs, ok := s.files[path]; ok {
		return fs.Rev
	}
	return 0
}

// FileHash returns the current hash for path and whether it is tracked.
// Caller must hold Mu.
func (s *State) FileHash(path string) (string, bool) {
	fs, ok := s.files[path]
	if !ok {
		return "", false
	}
	return fs.Hash, true
}

// FileContent returns the current content for path and whether it is
// tracked. The returned slice is owned by State; callers must not mutate it.
// Caller must hold Mu.
func (s *State) FileContent(path string) (FileState, bool) {
	fs, ok := s.files[path]
	if !ok {
		return FileState{}, false
	}
	return *fs, true
}

// GlobalSeq returns the current global sequence number. Caller must hold Mu.
func (s *State) GlobalSeq() uint64 {
	return s.globalSeq
}

// Manifest returns every tracked path's FileEntry, sorted lexicographically
// by path, plus the current global sequence as head_rev. Caller must hold Mu.
func (s *State) Manifest() protocol.Manifest {
	entries := make([]protocol.FileEntry, 0, len(s.files))
	for path, fs := range s.files {
		entries = append(entries, protocol.FileEntry{Path: path, Rev: fs.Rev, Hash: fs.Hash})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return protocol.Manifest{Files: entries, HeadRev: s.globalSeq}
}

// ApplyChange is the sole mutation primitive: it bumps global_seq, creates
// or advances the named file's revision, recomputes its hash, appends a
// change record, and returns the resulting (path, rev, hash) triple.
//
// It performs no no-op detection — callers (the snapshot walker, the host
// watcher, and the /propose handler) must have already decided this write is real.
// Caller must hold Mu.
func (s *State) ApplyChange(path string, content []byte, fromSession *uint64) protocol.FileEntry {
	s.globalSeq++
	seq := s.globalSeq

	hash := fingerprint.Of(content)

	fs, ok := s.files[path]
	if !ok {
		fs = &FileState{}
		s.files[path] = fs
	}
	fs.Rev++
	fs.Hash = hash
	fs.Content = content

	s.changeLog = append(s.changeLog, ChangeRecord{
		GlobalSeq:   seq,
		Path:        path,
		Content:     content,
		Rev:         fs.Rev,
		Hash:        hash,
		FromSession: fromSession,
	})

	return protocol.FileEntry{Path: path, Rev: fs.Rev, Hash: hash}
}

// ChangesSince returns every change record with GlobalSeq > since, in order,
// together with the current global sequence number. An empty result with
// head == since means "caught up". Caller must hold Mu.
func (s *State) ChangesSince(since uint64) ([]protocol.BroadcastEntry, uint64) {
	var entries []protocol.BroadcastEntry
	for _, rec := range s.changeLog {
		if rec.GlobalSeq > since {
			entries = append(entries, protocol.BroadcastEntry{
				Path:        rec.Path,
				Content:     rec.Content,
				Rev:         rec.Rev,
				Hash:        rec.Hash,
				FromSession: rec.FromSession,
			})
		}
	}
	return entries, s.globalSeq
}
