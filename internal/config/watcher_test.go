package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func startWatcher[T any](t *testing.T, w *Watcher[T]) {
	t.Helper()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Let the watcher goroutine settle.
	time.Sleep(100 * time.Millisecond)
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})
	startWatcher(t, watcher)

	writeFile(t, path, "name = \"updated\"\nvalue = 42\n")

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "value = 1\n")

	var count atomic.Int32
	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(testConfig) { count.Add(1) })
	startWatcher(t, watcher)

	writeFile(t, filepath.Join(dir, "other.toml"), "value = 2\n")
	time.Sleep(300 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("sibling change triggered %d reloads", got)
	}
}

func TestConfigWatcher_RenameReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.toml")
	writeFile(t, path, "")

	received := make(chan []CameraSpec, 1)
	watcher := NewConfigWatcher(path, LoadCameras, newTestLogger(),
		WithDebounce[[]CameraSpec](50*time.Millisecond))
	watcher.OnReload(func(specs []CameraSpec) {
		received <- specs
	})
	startWatcher(t, watcher)

	store := NewCameraStore(path)
	if _, err := store.Add(CameraSpec{ID: "front", VendorID: 0x046d}); err != nil {
		t.Fatal(err)
	}

	select {
	case specs := <-received:
		if len(specs) != 1 || specs[0].ID != "front" {
			t.Errorf("got %+v", specs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after atomic save")
	}
}

func TestConfigWatcher_MultipleHandlers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "name = \"test\"\nvalue = 1\n")

	var count atomic.Int32
	var configs []testConfig
	var mu sync.Mutex

	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond))
	for range 3 {
		watcher.OnReload(func(cfg testConfig) {
			count.Add(1)
			mu.Lock()
			configs = append(configs, cfg)
			mu.Unlock()
		})
	}
	startWatcher(t, watcher)

	writeFile(t, path, "name = \"new\"\nvalue = 2\n")
	time.Sleep(300 * time.Millisecond)

	if got := count.Load(); got != 3 {
		t.Errorf("expected 3 handlers called, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, cfg := range configs {
		if cfg.Name != "new" || cfg.Value != 2 {
			t.Errorf("handler %d got wrong config: %+v", i, cfg)
		}
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 1\n")

	var count1, count2 atomic.Int32
	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(testConfig) { count1.Add(1) })
	unsub2 := watcher.OnReload(func(testConfig) { count2.Add(1) })
	startWatcher(t, watcher)

	writeFile(t, path, "value = 10\n")
	time.Sleep(300 * time.Millisecond)

	unsub2()

	writeFile(t, path, "value = 20\n")
	time.Sleep(300 * time.Millisecond)

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.toml")
	writeFile(t, path, "")

	errorReceived := make(chan error, 1)
	configReceived := make(chan []CameraSpec, 1)

	watcher := NewConfigWatcher(path, LoadCameras, newTestLogger(),
		WithDebounce[[]CameraSpec](50*time.Millisecond),
		WithErrorHandler[[]CameraSpec](func(err error) {
			errorReceived <- err
		}),
	)
	watcher.OnReload(func(specs []CameraSpec) {
		configReceived <- specs
	})
	startWatcher(t, watcher)

	writeFile(t, path, "[[cameras]]\nid = \"bad id!\"\n")

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 0\n")

	var count atomic.Int32
	var lastValue atomic.Int32
	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(),
		WithDebounce[testConfig](200*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		count.Add(1)
		lastValue.Store(int32(cfg.Value))
	})
	startWatcher(t, watcher)

	for i := 1; i <= 5; i++ {
		writeFile(t, path, fmt.Sprintf("value = %d\n", i))
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := lastValue.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 1\n")

	var count atomic.Int32
	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(testConfig) { count.Add(1) })

	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := watcher.Stop(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "value = 2\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reloads after Stop, got %d", got)
	}
}
