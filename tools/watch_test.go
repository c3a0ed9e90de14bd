package tools

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotAndDiff(t *testing.T) {
	dir := t.TempDir()
	echoPath := writeDefinition(t, dir, "echo.tool", echoDefinition)
	writeDefinition(t, dir, "notes.md", "ignored")

	before, err := Snapshot(dir)
	require.NoError(t, err)
	require.Len(t, before, 1)
	require.Contains(t, before, echoPath)

	writeDefinition(t, dir, "echo.tool", echoDefinition)
	same, err := Snapshot(dir)
	require.NoError(t, err)
	require.Empty(t, DiffSnapshots(before, same))

	writeDefinition(t, dir, "echo.tool", echoDefinition+"title: Echo\n")
	added := writeDefinition(t, dir, "extra.tool", echoDefinition)
	after, err := Snapshot(dir)
	require.NoError(t, err)
	require.Equal(t, []string{echoPath, added}, DiffSnapshots(before, after))
	require.Equal(t, []string{echoPath, added}, DiffSnapshots(after, before))
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "echo.tool", echoDefinition)

	changes := make(chan []string, 4)
	watcher, err := NewWatcher(dir, func(changed []string) { changes <- changed })
	require.NoError(t, err)
	watcher.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeDefinition(t, dir, "new.tool", echoDefinition)

	select {
	case changed := <-changes:
		require.Equal(t, []string{filepath.Join(dir, "new.tool")}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new definition file")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNewWatcherRequiresDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), nil)
	require.ErrorIs(t, err, ErrDiscoveryDir)
}
