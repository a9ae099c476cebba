package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/avactl/internal/errors"
	"codeberg.org/mutker/avactl/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := pid.Acquire(dir)
	require.NoError(t, err)

	bytes, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(bytes))

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, lock.Path())
	assert.NoError(t, lock.Release(), "Expected second release to be a no-op")
}

func TestAcquireWhileHeld(t *testing.T) {
	dir := t.TempDir()

	lock, err := pid.Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	_, err = pid.Acquire(dir)
	require.Error(t, err)
	assert.Equal(t, errors.ErrAlreadyRunning, errors.CodeOf(err))
}

func TestAcquireStaleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avactl.pid")

	for _, content := range []string{"garbage", "0", "-7"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		lock, err := pid.Acquire(dir)
		require.NoError(t, err, "content %q", content)
		require.NoError(t, lock.Release())
	}
}

func TestAcquireMissingDir(t *testing.T) {
	_, err := pid.Acquire(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(err))
}
