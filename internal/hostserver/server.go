// Package hostserver wires collabstate.State to the network: the HTTP
// endpoints of spec.md §4.4 plus the host filesystem watcher of §4.6. The
// server holds exactly one State behind its mutex; every handler acquires
// the lock, does its bookkeeping, and releases before touching disk.
package hostserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vasc-collab/collab/internal/collabstate"
	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/pathutil"
	"github.com/vasc-collab/collab/internal/protocol"
)

const gracefulShutdownTimeout = 5 * time.Second

// Server exposes the host's State over HTTP.
type Server struct {
	state      *collabstate.State
	token      string // empty means no auth required
	projectDir string
	ignore     *ignorelist.List
	log        *logrus.Entry

	httpServer *http.Server
}

// Options configures a new Server.
type Options struct {
	State      *collabstate.State
	Token      string
	ProjectDir string
	Ignore     *ignorelist.List
	Logger     *logrus.Logger
}

// New builds a Server ready for ListenAndServe. It does not load the project
// directory or start the watcher — the caller does that explicitly so
// startup ordering is visible at the call site.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	instanceID := uuid.New().String()[:8]

	return &Server{
		state:      opts.State,
		token:      opts.Token,
		projectDir: opts.ProjectDir,
		ignore:     opts.Ignore,
		log:        logger.WithField("host_instance", instanceID),
	}
}

// Mux builds the http.Handler for the collab wire protocol.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", s.handleAuth)
	mux.HandleFunc("/manifest", s.handleManifest)
	mux.HandleFunc("/file", s.handleFile)
	mux.HandleFunc("/propose", s.handlePropose)
	mux.HandleFunc("/changes", s.handleChanges)
	return mux
}

// ListenAndServe binds addr and serves until the context is canceled, at
// which point it shuts the server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Mux(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("collab host listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req protocol.AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.AuthResponse{OK: false, Error: "malformed request body"})
		return
	}

	if req.ProtocolVersion != protocol.ProtocolVersion {
		writeJSON(w, http.StatusBadRequest, protocol.AuthResponse{
			OK: false,
			Error: fmt.Sprintf("protocol version mismatch: server=%d, client=%d",
				protocol.ProtocolVersion, req.ProtocolVersion),
		})
		return
	}

	if !checkToken(req.Token, s.token) {
		writeJSON(w, http.StatusUnauthorized, protocol.AuthResponse{OK: false, Error: "invalid token"})
		return
	}

	s.state.Mu.Lock()
	sessionID := s.state.AddSession()
	s.state.Mu.Unlock()

	s.log.WithField("session_id", sessionID).Info("session authenticated")
	writeJSON(w, http.StatusOK, protocol.AuthResponse{SessionID: sessionID, OK: true})
}

// checkToken implements spec.md §4.5: a host token of "" means no auth is
// required; otherwise the client-supplied token must match exactly. The
// comparison runs in constant time so repeated /auth attempts can't be used
// to guess the token via response-latency differences.
func checkToken(supplied, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) == 1
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	s.state.Mu.Lock()
	m := s.state.Manifest()
	s.state.Mu.Unlock()

	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")

	s.state.Mu.Lock()
	fs, ok := s.state.FileContent(path)
	s.state.Mu.Unlock()

	if !ok {
		http.Error(w, fmt.Sprintf("file not found: %s", path), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, protocol.FileContent{
		Path:    path,
		Content: fs.Content,
		Rev:     fs.Rev,
		Hash:    fs.Hash,
	})
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChangeProposal
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ChangeResult{Accepted: false, Error: "malformed request body"})
		return
	}

	// Validated before anything is committed to state: a path that would
	// escape the project root must never reach the change log.
	dest, err := pathutil.SafeJoin(s.projectDir, req.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ChangeResult{
			Path: req.Path, Accepted: false, Error: err.Error(),
		})
		return
	}

	s.state.Mu.Lock()

	if !s.state.HasSession(req.SessionID) {
		s.state.Mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, protocol.ChangeResult{
			Path: req.Path, Accepted: false, Error: "unknown session; re-authenticate",
		})
		return
	}

	currentRev := s.state.FileRev(req.Path)
	if req.BaseRev != currentRev {
		currentHash, _ := s.state.FileHash(req.Path)
		s.state.Mu.Unlock()
		writeJSON(w, http.StatusConflict, protocol.ChangeResult{
			Path:         req.Path,
			Accepted:     false,
			ConflictRev:  currentRev,
			ConflictHash: currentHash,
			Error:        fmt.Sprintf("conflict: base_rev=%d but current_rev=%d", req.BaseRev, currentRev),
		})
		return
	}

	sid := req.SessionID
	entry := s.state.ApplyChange(req.Path, req.Content, &sid)
	s.state.NoteSessionPoll(req.SessionID, s.state.GlobalSeq())
	s.state.Mu.Unlock()

	// Disk I/O happens after the lock is released (spec.md §4.5 step 6):
	// the change is already visible to other clients via the log, and a
	// write failure here does not roll back the in-memory commit.
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.ChangeResult{
			Path: req.Path, Accepted: false, Error: fmt.Sprintf("failed to create parent dir: %v", err),
		})
		return
	}
	if err := os.WriteFile(dest, req.Content, 0o644); err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.ChangeResult{
			Path: req.Path, Accepted: false, Error: fmt.Sprintf("failed to write file: %v", err),
		})
		return
	}

	s.log.WithFields(logrus.Fields{"path": entry.Path, "rev": entry.Rev, "session_id": req.SessionID}).
		Info("accepted proposed change")

	writeJSON(w, http.StatusOK, protocol.ChangeResult{Path: req.Path, Accepted: true, NewRev: entry.Rev})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	sinceRev, err := parseSinceRev(r.URL.Query().Get("since_rev"))
	if err != nil {
		http.Error(w, "invalid since_rev", http.StatusBadRequest)
		return
	}

	s.state.Mu.Lock()
	entries, head := s.state.ChangesSince(sinceRev)
	s.state.Mu.Unlock()

	writeJSON(w, http.StatusOK, protocol.ChangesBatch{Entries: entries, HeadRev: head})
}

func parseSinceRev(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	var v uint64
	_, err := fmt.Sscanf(raw, "%d", &v)
	return v, err
}
