package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalHostRun(t *testing.T) {
	host := NewLocalHost()

	res, err := host.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, "out\nerr", res.Output())
}

func TestLocalHostRunNonZeroExit(t *testing.T) {
	host := NewLocalHost()

	res, err := host.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo nope >&2; exit 3"}})
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, cmdErr.Error(), "nope")
}

func TestLocalHostRunStdinDirEnv(t *testing.T) {
	host := NewLocalHost()
	dir := t.TempDir()

	res, err := host.Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", `cat; printf " %s %s" "$DECKHAND_TEST" "$(pwd)"`},
		Dir:   dir,
		Env:   map[string]string{"DECKHAND_TEST": "yes"},
		Stdin: []byte("in"),
	})
	require.NoError(t, err)

	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{"in yes " + dir, "in yes " + resolved}, res.Stdout)
}

func TestLocalHostRunMissingBinary(t *testing.T) {
	host := NewLocalHost()

	_, err := host.Run(context.Background(), Command{Name: "deckhand-no-such-binary"})
	require.Error(t, err)
	var cmdErr *CommandError
	assert.False(t, errors.As(err, &cmdErr), "start failures are not exit errors")
}

func TestLocalHostRunCancelled(t *testing.T) {
	host := NewLocalHost()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := host.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalHostFiles(t *testing.T) {
	host := NewLocalHost()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "docker-compose.deploy.yml")

	require.NoError(t, host.WriteFile(ctx, path, []byte("services: {}\n"), 0o644))

	data, err := host.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "services: {}\n", string(data))

	require.NoError(t, host.RemoveFile(ctx, path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, host.RemoveFile(ctx, path), "removing a missing file is not an error")
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "docker", Args: []string{"pull", "ghcr.io/acme/app:abc1234"}, Stdin: []byte("secret")}
	assert.Equal(t, "docker pull ghcr.io/acme/app:abc1234", c.String())
}
