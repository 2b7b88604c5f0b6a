package runtimepath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirPrefersXDGRuntimeDir(t *testing.T) {
	runtime := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtime)

	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, runtime, dir)
}

func TestSocketAndPIDPathsShareDir(t *testing.T) {
	runtime := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtime)

	socket, err := SocketPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(runtime, "sashd.sock"), socket)

	pid, err := PIDFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(runtime, "sashd.pid"), pid)
}

func TestStateDirHonorsXDGStateHome(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	dir, err := StateDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(state, "sashd"), dir)

	hist, err := HistoryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "history.json"), hist)
}
