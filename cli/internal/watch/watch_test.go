package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	prev := Debounce
	Debounce = 50 * time.Millisecond
	defer func() { Debounce = prev }()

	dir := t.TempDir()
	file := filepath.Join(dir, "schema.prisma")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("model A {}"), 0644))

	calls := make(chan struct{}, 10)
	w, err := NewWatcher(file, func() error {
		calls <- struct{}{}
		return errors.New("callback errors do not stop the watcher")
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(file, []byte("model B {}"), 0644))
	}

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not called")
	}

	require.NoError(t, os.WriteFile(file, []byte("model C {}"), 0644))
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher stopped after a callback error")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewWatcherMissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "schema.prisma"), func() error { return nil })
	require.Error(t, err)
}
