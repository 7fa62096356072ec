package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
		gone      bool
	}{
		{EventTypeCreated, "created", false},
		{EventTypeModified, "modified", false},
		{EventTypeDeleted, "deleted", true},
		{EventTypeRenamed, "renamed", true},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
			assert.Equal(t, tc.gone, tc.eventType.Gone())
		})
	}
}

func TestFilters(t *testing.T) {
	assert.True(t, CoffeeFilter("public/javascripts/a.coffee"))
	assert.False(t, CoffeeFilter("public/javascripts/a.js"))
	assert.False(t, CoffeeFilter("public/javascripts/a.coffee.swp"))

	assert.True(t, NoHiddenFilter("public/javascripts/a.coffee"))
	assert.False(t, NoHiddenFilter("public/javascripts/.#a.coffee"))
}

func TestFileWatcher_Within(t *testing.T) {
	root := t.TempDir()
	fw, err := NewFileWatcher(root, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	got, err := fw.within("public/javascripts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fw.root, "public", "javascripts"), got)

	_, err = fw.within("../outside")
	assert.Error(t, err)

	_, err = fw.within(filepath.Dir(fw.root))
	assert.Error(t, err)
}

func TestCoalescer_LastEventPerPathWins(t *testing.T) {
	c := newCoalescer(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.run(ctx)

	require.True(t, c.offer(ChangeEvent{Type: EventTypeCreated, Path: "a.coffee"}))
	require.True(t, c.offer(ChangeEvent{Type: EventTypeModified, Path: "b.coffee"}))
	require.True(t, c.offer(ChangeEvent{Type: EventTypeModified, Path: "a.coffee"}))

	select {
	case batch := <-c.out:
		require.Len(t, batch, 2)
		assert.Equal(t, "a.coffee", batch[0].Path)
		assert.Equal(t, EventTypeModified, batch[0].Type)
		assert.Equal(t, "b.coffee", batch[1].Path)
	case <-time.After(5 * time.Second):
		t.Fatal("coalescer never released the batch")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want EventType
		ok   bool
	}{
		{fsnotify.Create, EventTypeCreated, true},
		{fsnotify.Write, EventTypeModified, true},
		{fsnotify.Create | fsnotify.Write, EventTypeCreated, true},
		{fsnotify.Remove, EventTypeDeleted, true},
		{fsnotify.Rename, EventTypeRenamed, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, ok := classify(tt.op)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	fw, err := NewFileWatcher(t.TempDir(), time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Stop())
	assert.NotPanics(t, func() { _ = fw.Stop() })
}

func TestFileWatcher_DeliversCoffeeChanges(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "public", "javascripts")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	fw, err := NewFileWatcher(root, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var mu sync.Mutex
	var seen []ChangeEvent
	fw.AddFilter(CoffeeFilter)
	fw.AddFilter(NoHiddenFilter)
	fw.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, events...)
		return nil
	})
	require.NoError(t, fw.AddRecursive("public/javascripts"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.js"), []byte("var a;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.coffee"), []byte("a = 1"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, event := range seen {
		assert.Equal(t, filepath.Join(dir, "a.coffee"), event.Path)
	}
}

func TestFileWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "assets")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	fw, err := NewFileWatcher(root, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	paths := make(chan string, 10)
	fw.AddFilter(CoffeeFilter)
	fw.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		for _, event := range events {
			paths <- event.Path
		}
		return nil
	})
	require.NoError(t, fw.AddRecursive("assets"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(nested, 0o755))

	want := filepath.Join(nested, "b.coffee")
	deadline := time.After(5 * time.Second)
	for {
		// The directory watch is added asynchronously, so keep touching
		// the file until an event arrives.
		require.NoError(t, os.WriteFile(want, []byte("b = 2"), 0o644))
		select {
		case got := <-paths:
			assert.Equal(t, want, got)
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event from the new directory")
		}
	}
}
