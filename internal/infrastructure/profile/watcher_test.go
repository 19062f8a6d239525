package profile

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestWatcherReloadsAndKeepsLastGoodProfile(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "profile.json")
	writeFile(t, path, `{"name":"Ada"}`)

	loader := NewLoader(LoaderOptions{Path: path})
	initial, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	provider := NewProvider(initial)

	var reloads, failures atomic.Int32
	watcher := NewWatcher(loader, provider, WatcherOptions{
		Debounce: 20 * time.Millisecond,
		OnReload: func(err error) {
			reloads.Add(1)
			if err != nil {
				failures.Add(1)
			}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer watcher.Stop()

	writeFile(t, path, `{"name":"Grace"}`)
	waitFor(t, func() bool { return provider.Current().Name == "Grace" })

	writeFile(t, path, `{"name":`)
	waitFor(t, func() bool { return failures.Load() > 0 })
	if provider.Current().Name != "Grace" {
		t.Fatalf("failed reload must keep previous profile, got %q", provider.Current().Name)
	}

	writeFile(t, filepath.Join(filepath.Dir(path), "other.json"), `{"name":"Other"}`)
	time.Sleep(100 * time.Millisecond)
	if provider.Current().Name != "Grace" {
		t.Fatalf("unrelated file must not trigger reload")
	}

	watcher.Stop()
	if reloads.Load() == 0 {
		t.Fatalf("expected reload notifications")
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	watcher := NewWatcher(NewLoader(LoaderOptions{Path: "profile.json"}), NewProvider(initialProfile()), WatcherOptions{})
	watcher.Stop()
}
