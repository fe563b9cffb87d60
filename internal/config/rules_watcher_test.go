package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRulesWatcher_Validation(t *testing.T) {
	_, err := NewRulesWatcher("", 0, func(string) error { return nil })
	assert.Error(t, err)
	_, err = NewRulesWatcher("rules.yaml", 0, nil)
	assert.Error(t, err)
}

func TestRulesWatcher_DebouncedReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("failure: []\n"), 0o600))

	var reloads atomic.Int32
	w, err := NewRulesWatcher(path, 100, func(p string) error {
		assert.Equal(t, path, p)
		reloads.Add(1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("failure: []\n# edit\n"), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return reloads.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestRulesWatcher_FailedReloadKeepsWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	var calls atomic.Int32
	w, err := NewRulesWatcher(path, 50, func(string) error {
		if calls.Add(1) == 1 {
			return errors.New("bad rules")
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o600))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("c"), 0o600))
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 20*time.Millisecond)
}
