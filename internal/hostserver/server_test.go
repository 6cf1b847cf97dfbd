package hostserver

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasc-collab/collab/internal/collabstate"
	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/protocol"
	"github.com/vasc-collab/collab/internal/snapshotio"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "a.txt"), []byte("hello"), 0o644))

	state := collabstate.New()
	ignore := ignorelist.Parse(ignorelist.HostMandatory, nil)
	require.NoError(t, snapshotio.BuildFromDir(projectDir, state, ignore))

	logger := logrus.New()
	logger.SetOutput(testDiscard{})
	srv := New(Options{State: state, ProjectDir: projectDir, Ignore: ignore, Logger: logger})
	return srv, projectDir
}

func authedSession(t *testing.T, srv *Server) uint64 {
	t.Helper()
	srv.state.Mu.Lock()
	defer srv.state.Mu.Unlock()
	return srv.state.AddSession()
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	return rec
}

func TestHandlePropose_UnsafePathRejectedBeforeStateCommit(t *testing.T) {
	srv, _ := newTestServer(t)
	sid := authedSession(t, srv)

	rec := doJSON(t, srv, "POST", "/propose", protocol.ChangeProposal{
		SessionID: sid,
		Path:      "../../etc/passwd",
		BaseRev:   0,
		Content:   []byte("pwned"),
	})

	assert.Equal(t, 400, rec.Code)

	srv.state.Mu.Lock()
	_, tracked := srv.state.FileHash("../../etc/passwd")
	srv.state.Mu.Unlock()
	assert.False(t, tracked, "an unsafe path must never be committed to state")
}

func TestCheckToken(t *testing.T) {
	assert.True(t, checkToken("anything", ""))
	assert.True(t, checkToken("secret", "secret"))
	assert.False(t, checkToken("wrong", "secret"))
	assert.False(t, checkToken("", "secret"))
}
