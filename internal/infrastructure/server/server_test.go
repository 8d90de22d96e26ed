package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/tracing"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := NewServer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := get(s, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(tracing.HeaderRequestID))

	w = get(s, "/terminals")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"terminals":[],"count":0}`, w.Body.String())

	w = get(s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "termd_terminals_active")
	assert.Contains(t, w.Body.String(), "termd_http_requests_total")
}

func TestHostModeDefaultsProjectID(t *testing.T) {
	cfg := testConfig()
	cfg.Remote.Listen = "127.0.0.1:0"

	s := newTestServer(t, cfg)
	require.NotNil(t, s.host)
	assert.EqualValues(t, HostProjectID, s.Project().ID())
	assert.False(t, s.Project().IsRemote())
}

func TestGuestModeUsesRemoteClient(t *testing.T) {
	cfg := testConfig()
	cfg.Remote.Address = "127.0.0.1:1"
	cfg.Remote.ProjectID = 7

	// Dialing is lazy, so no host needs to listen.
	s := newTestServer(t, cfg)
	assert.True(t, s.Project().IsRemote())
	assert.EqualValues(t, 7, s.Project().ID())
	assert.Nil(t, s.host)
}

func TestLoadWorkspace(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, settings.DirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, settings.DirName, "terminal.toml"),
		[]byte("[terminal]\nshell = \"/bin/zsh\"\n"), 0o644))

	global := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(global, []byte("terminal:\n  max_scroll_history_lines: 500\n"), 0o644))

	worktrees, store, err := loadWorkspace(context.Background(), config.TerminalConfig{
		SettingsFile: global,
		Worktrees:    []string{root},
	}, zap.NewNop())
	require.NoError(t, err)

	list := worktrees.List()
	require.Len(t, list, 1)

	got := store.Get(&settings.Location{WorktreeID: list[0].ID, Path: "src"})
	assert.Equal(t, "/bin/zsh", got.Shell.Program)
	assert.Equal(t, 500, got.MaxScrollHistoryLines)
}

func TestLoadWorkspaceBadSettingsFile(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[terminal\n"), 0o644))

	_, _, err := loadWorkspace(context.Background(), config.TerminalConfig{SettingsFile: bad}, zap.NewNop())
	assert.Error(t, err)
}
