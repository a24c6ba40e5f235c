package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/common/config"
	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/run/progress"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

func testManager(t *testing.T) (*Manager, *progress.Store) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	store := progress.NewStore(log)
	mgr := NewManager(t.TempDir(), config.WorktreeConfig{
		Enabled:      true,
		BranchPrefix: "agentboard/",
	}, store, log)
	return mgr, store
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add user login", "add-user-login"},
		{"Fix bug #42 (critical!)", "fix-bug-42-critical"},
		{"  --- ", "task"},
		{"ümlaut handling", "mlaut-handling"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), "slugify(%q)", tt.in)
	}
}

func TestManager_CreateInstance(t *testing.T) {
	mgr, store := testManager(t)

	path, err := mgr.CreateInstance("Add user login", "Implement login with sessions.")
	require.NoError(t, err)

	assert.Contains(t, filepath.Base(path), "add-user-login-")

	prd, err := os.ReadFile(filepath.Join(path, RequirementsFile))
	require.NoError(t, err)
	assert.Equal(t, "Implement login with sessions.", string(prd))

	snap, err := store.Read(path)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, v1.RunStatusLaunching, snap.Status)
	assert.Equal(t, "Initialization", snap.Phase)
}

func TestManager_CreateInstanceUniquePaths(t *testing.T) {
	mgr, _ := testManager(t)

	// Identical titles created back-to-back can land in the same
	// millisecond; paths must still be distinct.
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		path, err := mgr.CreateInstance("same title", "requirements")
		require.NoError(t, err)
		assert.False(t, seen[path], "instance path %s reused", path)
		seen[path] = true
	}
}

func TestManager_IsolationDegradesOutsideGitRepo(t *testing.T) {
	mgr, store := testManager(t)

	path, err := mgr.CreateInstance("degrade test", "reqs")
	require.NoError(t, err)

	codebase := t.TempDir() // not a git repository

	workDir, branch := mgr.CreateIsolatedWorkspace(context.Background(), path, codebase)
	assert.Equal(t, codebase, workDir, "falls back to the primary copy")
	assert.Equal(t, "", branch)

	snap, err := store.Read(path)
	require.NoError(t, err)

	notes := 0
	for _, line := range snap.Log {
		if len(line) >= 5 && line[:5] == "note:" {
			notes++
		}
	}
	assert.Equal(t, 1, notes, "degradation appends exactly one note line")
}

func TestManager_WriteChangeRequest(t *testing.T) {
	mgr, _ := testManager(t)

	path, err := mgr.CreateInstance("follow up", "reqs")
	require.NoError(t, err)

	require.NoError(t, mgr.WriteChangeRequest(path, "please rename the endpoint"))

	data, err := os.ReadFile(filepath.Join(path, ChangeRequestFile))
	require.NoError(t, err)
	assert.Equal(t, "please rename the endpoint", string(data))
}

func TestManager_CleanupRemovesInstance(t *testing.T) {
	mgr, _ := testManager(t)

	path, err := mgr.CreateInstance("cleanup", "reqs")
	require.NoError(t, err)

	mgr.Cleanup(context.Background(), path, t.TempDir())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "instance directory removed")

	// Cleaning up again must not panic or error.
	mgr.Cleanup(context.Background(), path, t.TempDir())
}
