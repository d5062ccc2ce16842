package watch

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/bundle-hub/bundle-hub/internal/events"
)

type fakeTarget struct {
	*events.Emitter

	mu      sync.Mutex
	watches map[string]io.Closer
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{Emitter: events.NewEmitter(), watches: make(map[string]io.Closer)}
}

func (f *fakeTarget) TrackWatch(file string, h io.Closer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches[file] = h
}

func (f *fakeTarget) Untrack(file string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watches, file)
}

func (f *fakeTarget) handles() map[string]io.Closer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]io.Closer, len(f.watches))
	for k, v := range f.watches {
		out[k] = v
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func tempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.js")
	require.NoError(t, os.WriteFile(path, []byte("a();"), 0o644))
	return path
}

func TestWatcherTracksFilesFromEvents(t *testing.T) {
	target := newFakeTarget()
	file := tempFile(t)

	w, err := Arm(target, Options{OnChange: func(string) {}, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	target.Emit(events.Event{Name: events.File, File: file})
	target.Emit(events.Event{Name: events.File, File: file})

	require.Len(t, target.handles(), 1)
	require.Equal(t, []string{file}, w.Files())
}

func TestWatcherReportsChanges(t *testing.T) {
	target := newFakeTarget()
	file := tempFile(t)

	changed := make(chan string, 16)
	w, err := Arm(target, Options{
		OnChange: func(f string) { changed <- f },
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	target.Emit(events.Event{Name: events.File, File: file})
	require.NoError(t, os.WriteFile(file, []byte("b();"), 0o644))

	select {
	case got := <-changed:
		require.Equal(t, file, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcherDebouncesSettle(t *testing.T) {
	target := newFakeTarget()
	file := tempFile(t)

	var settled atomic.Int32
	w, err := Arm(target, Options{
		OnChange: func(string) {},
		OnSettle: func() { settled.Add(1) },
		Debounce: 200 * time.Millisecond,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	target.Emit(events.Event{Name: events.File, File: file})
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("edit"), 0o644))
	}

	require.Eventually(t, func() bool { return settled.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	require.Equal(t, int32(1), settled.Load())
}

func TestHandleCloseStopsWatchingFile(t *testing.T) {
	target := newFakeTarget()
	file := tempFile(t)

	w, err := Arm(target, Options{OnChange: func(string) {}, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	target.Emit(events.Event{Name: events.File, File: file})
	h := target.handles()[file]
	require.NotNil(t, h)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.Empty(t, target.handles())
	require.Empty(t, w.Files())
}

func TestCloseIsIdempotentAndStopsTracking(t *testing.T) {
	target := newFakeTarget()
	file := tempFile(t)

	w, err := Arm(target, Options{OnChange: func(string) {}, Logger: quietLogger()})
	require.NoError(t, err)

	target.Emit(events.Event{Name: events.File, File: file})
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Empty(t, target.handles())

	target.Emit(events.Event{Name: events.File, File: file})
	require.Empty(t, target.handles())
	require.Equal(t, 0, target.ListenerCount(events.File))
}

func TestArmValidatesInput(t *testing.T) {
	_, err := Arm(nil, Options{OnChange: func(string) {}})
	require.Error(t, err)
	_, err = Arm(newFakeTarget(), Options{})
	require.Error(t, err)
}
