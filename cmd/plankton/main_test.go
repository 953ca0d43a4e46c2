package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/log"
	"github.com/plankton-sim/plankton-go/pkg/persistence"
	"github.com/plankton-sim/plankton-go/pkg/registry"
	"github.com/plankton-sim/plankton-go/pkg/version"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out, io.Discard)
	return out.String(), err
}

func TestParseArgs(t *testing.T) {
	cfg, err := parseArgs([]string{"-r", "127.0.0.1:10000", "-s", "hot", "-c", "0.05", "-e", "2",
		"linkam_t95", "-p", "9999", "--telnet-mode"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:10000", cfg.RPCHost)
	assert.Equal(t, "hot", cfg.Setup)
	assert.Equal(t, 0.05, cfg.CycleDelay)
	assert.Equal(t, 2.0, cfg.Speed)
	assert.Equal(t, "linkam_t95", cfg.Device)
	assert.Equal(t, []string{"-p", "9999", "--telnet-mode"}, cfg.AdapterArgs)
	assert.Empty(t, cfg.Protocol)
}

func TestParseArgsSeparator(t *testing.T) {
	cfg, err := parseArgs([]string{"-p", "stream", "example_motor", "--", "-b", "127.0.0.1"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "stream", cfg.Protocol)
	assert.Equal(t, []string{"-b", "127.0.0.1"}, cfg.AdapterArgs)
}

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := parseArgs(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.CycleDelay)
	assert.Equal(t, 1.0, cfg.Speed)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Device)
	assert.Empty(t, cfg.AdapterArgs)
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "-v")
	require.NoError(t, err)
	assert.Equal(t, version.Current+"\n", out)
}

func TestListDevices(t *testing.T) {
	out, err := runCmd(t)
	require.NoError(t, err)
	assert.Equal(t, "Please specify a device to simulate.\n"+
		"The following devices are available:\n"+
		"\texample_motor\n"+
		"\tlinkam_t95\n", out)
}

func TestListProtocols(t *testing.T) {
	out, err := runCmd(t, "-l", "linkam_t95")
	require.NoError(t, err)
	assert.Equal(t, "stream\n", out)
}

func TestShowInterface(t *testing.T) {
	out, err := runCmd(t, "-i", "example_motor", "-p", "1234")
	require.NoError(t, err)
	assert.Contains(t, out, "1234")
	assert.Contains(t, out, "get_position")
}

func TestErrors(t *testing.T) {
	_, err := runCmd(t, "no_such_device")
	assert.ErrorIs(t, err, registry.ErrDeviceNotFound)

	_, err = runCmd(t, "-p", "epics", "linkam_t95")
	assert.ErrorIs(t, err, adapter.ErrProtocolNotFound)

	_, err = runCmd(t, "-i", "-s", "missing", "linkam_t95")
	assert.ErrorIs(t, err, registry.ErrSetupNotFound)

	_, err = runCmd(t, "-f", filepath.Join(t.TempDir(), "missing.yaml"), "linkam_t95")
	assert.Error(t, err)

	_, err = runCmd(t, "--no-such-flag")
	assert.Error(t, err)
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
example_motor:
  far:
    description: Heading for the far end.
    initial_data:
      target: 250
`), 0644))

	out, err := runCmd(t, "-f", path, "-i", "-s", "far", "example_motor")
	require.NoError(t, err)
	assert.Contains(t, out, "get_target")
}

func TestRunUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	stateFile := filepath.Join(dir, "state.json")
	eventLog := filepath.Join(dir, "events.plog")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := run(ctx, []string{
		"-c", "0.01", "-s", "middle", "-r", "127.0.0.1:0",
		"--state-file", stateFile, "--event-log", eventLog, "--log-level", "warn",
		"example_motor", "-b", "127.0.0.1", "-p", "0",
	}, io.Discard, io.Discard)
	require.NoError(t, err)

	snap, err := persistence.NewStore(stateFile).Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "example_motor", snap.Device)
	assert.Equal(t, "middle", snap.Setup)
	assert.Equal(t, 125.0, snap.Parameters["target"])

	r, err := log.NewReader(eventLog)
	require.NoError(t, err)
	defer r.Close()
	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, log.CategoryState, first.Category)
}

func TestInvalidLogLevel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, []string{"--log-level", "loud", "example_motor"}, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "invalid log level")
}
