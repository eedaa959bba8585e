package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hlswatch/core/dispatch"
	"hlswatch/core/registry"
)

type recordingSink struct {
	mu    sync.Mutex
	uris  []string
	enter chan string   // optional: receives each uri as dispatch starts
	gate  chan struct{} // optional: dispatch blocks until closed
}

func (s *recordingSink) Dispatch(ctx context.Context, u dispatch.Unit) error {
	if s.enter != nil {
		s.enter <- u.Segment.URI
	}
	if s.gate != nil {
		<-s.gate
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uris = append(s.uris, u.Segment.URI)
	return nil
}

func (s *recordingSink) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uris...)
}

func manifest(segments ...string) string {
	text := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n"
	for i, seg := range segments {
		text += fmt.Sprintf("#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:%02d.000000Z\n#EXTINF:6.0,\n%s\n", i*6, seg)
	}
	return text
}

// writeFile replaces name atomically, the way live packagers publish playlists,
// so each update reaches the monitor as a single event with complete content.
func writeFile(t *testing.T, name, content string) {
	t.Helper()
	tmp := filepath.Join(filepath.Dir(name), "."+filepath.Base(name)+".tmp")
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		t.Fatalf("rename %s: %v", name, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type running struct {
	m      *Monitor
	cancel context.CancelFunc
	result chan Result
}

func start(t *testing.T, name string, sink dispatch.Sink) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{
		m:      New(name, Options{QueueSize: 8, Sink: sink}),
		cancel: cancel,
		result: make(chan Result, 1),
	}
	go func() { r.result <- r.m.Run(ctx) }()
	t.Cleanup(cancel)
	waitFor(t, "monitor to watch", func() bool { return r.m.State() == StateWatching })
	return r
}

func (r *running) wait(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-r.result:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not terminate")
		return Result{}
	}
}

func TestMonitorDispatchesExistingSegmentOnStart(t *testing.T) {
	name := filepath.Join(t.TempDir(), "live.m3u8")
	writeFile(t, name, manifest("seg1.ts"))

	sink := &recordingSink{}
	r := start(t, name, sink)
	waitFor(t, "seg1 dispatch", func() bool { return len(sink.got()) == 1 })

	r.cancel()
	res := r.wait(t)
	if res.Reason != ReasonCancelled || res.Err != nil {
		t.Fatalf("expected clean cancellation, got %+v", res)
	}
	if got := sink.got(); len(got) != 1 || got[0] != "seg1.ts" {
		t.Fatalf("expected exactly one dispatch of seg1.ts, got %v", got)
	}
	if r.m.State() != StateTerminated {
		t.Fatalf("expected terminated state, got %v", r.m.State())
	}
}

func TestMonitorDeduplicatesAndFollowsNewSegments(t *testing.T) {
	name := filepath.Join(t.TempDir(), "live.m3u8")
	writeFile(t, name, manifest("seg1.ts"))

	sink := &recordingSink{}
	r := start(t, name, sink)
	waitFor(t, "seg1 dispatch", func() bool { return len(sink.got()) == 1 })

	writeFile(t, name, manifest("seg1.ts"))
	writeFile(t, name, manifest("seg1.ts"))
	time.Sleep(200 * time.Millisecond)
	if got := sink.got(); len(got) != 1 {
		t.Fatalf("expected rewrites with the same last segment to be deduplicated, got %v", got)
	}

	writeFile(t, name, manifest("seg1.ts", "seg2.ts"))
	waitFor(t, "seg2 dispatch", func() bool { return len(sink.got()) == 2 })

	r.cancel()
	r.wait(t)
	got := sink.got()
	if len(got) != 2 || got[0] != "seg1.ts" || got[1] != "seg2.ts" {
		t.Fatalf("expected [seg1.ts seg2.ts], got %v", got)
	}
}

func TestMonitorTerminatesOnDeleteAfterDraining(t *testing.T) {
	name := filepath.Join(t.TempDir(), "live.m3u8")
	writeFile(t, name, manifest("seg1.ts"))

	sink := &recordingSink{enter: make(chan string, 4), gate: make(chan struct{})}
	r := start(t, name, sink)

	select {
	case <-sink.enter:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch never started")
	}
	if err := os.Remove(name); err != nil {
		t.Fatalf("remove: %v", err)
	}

	select {
	case res := <-r.result:
		t.Fatalf("monitor reported %+v before in-flight dispatch finished", res)
	case <-time.After(100 * time.Millisecond):
	}

	close(sink.gate)
	res := r.wait(t)
	if res.Reason != ReasonDeleted || res.Err != nil {
		t.Fatalf("expected deleted without error, got %+v", res)
	}
	if got := sink.got(); len(got) != 1 {
		t.Fatalf("expected in-flight dispatch to complete, got %v", got)
	}
}

func TestMonitorCancellationDrainsQueue(t *testing.T) {
	name := filepath.Join(t.TempDir(), "live.m3u8")
	writeFile(t, name, manifest("seg1.ts"))

	sink := &recordingSink{enter: make(chan string, 8), gate: make(chan struct{})}
	r := start(t, name, sink)
	<-sink.enter

	writeFile(t, name, manifest("seg1.ts", "seg2.ts"))
	waitFor(t, "seg2 enqueue", func() bool { return r.m.queue.Pending() >= 2 })

	r.cancel()
	select {
	case res := <-r.result:
		t.Fatalf("monitor reported %+v with units still queued", res)
	case <-time.After(100 * time.Millisecond):
	}

	close(sink.gate)
	res := r.wait(t)
	if res.Reason != ReasonCancelled {
		t.Fatalf("expected cancelled, got %+v", res)
	}
	if got := sink.got(); len(got) != 2 || got[1] != "seg2.ts" {
		t.Fatalf("expected both queued segments dispatched, got %v", got)
	}
	if r.m.queue.Pending() != 0 {
		t.Fatalf("expected drained queue, got %d pending", r.m.queue.Pending())
	}
}

func TestMonitorIgnoresUnreadableAndEmptyWrites(t *testing.T) {
	name := filepath.Join(t.TempDir(), "live.m3u8")
	writeFile(t, name, "")

	sink := &recordingSink{}
	r := start(t, name, sink)

	writeFile(t, name, "#EXTM3U\n#EXTINF:6.0,\n")
	writeFile(t, name, manifest("seg1.ts"))
	waitFor(t, "seg1 dispatch", func() bool { return len(sink.got()) == 1 })

	r.cancel()
	if res := r.wait(t); res.Reason != ReasonCancelled {
		t.Fatalf("expected cancelled, got %+v", res)
	}
}

func TestMonitorSkipsMasterPlaylists(t *testing.T) {
	name := filepath.Join(t.TempDir(), "master.m3u8")
	writeFile(t, name, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=640000\nlow/index.m3u8\n")

	sink := &recordingSink{}
	r := start(t, name, sink)

	// A later media-looking write does not change the fixed kind.
	writeFile(t, name, manifest("seg1.ts"))
	time.Sleep(200 * time.Millisecond)

	r.cancel()
	r.wait(t)
	if got := sink.got(); len(got) != 0 {
		t.Fatalf("expected no dispatch for a master playlist, got %v", got)
	}
	if r.m.Kind().String() != "master" {
		t.Fatalf("expected master kind, got %v", r.m.Kind())
	}
}

func TestMonitorMissingDirectoryFails(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "gone", "live.m3u8"), Options{})
	res := m.Run(context.Background())
	if res.Reason != ReasonError || res.Err == nil {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestMonitorAlreadyDeletedFile(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "live.m3u8"), Options{})
	done := make(chan Result, 1)
	go func() { done <- m.Run(context.Background()) }()
	select {
	case res := <-done:
		if res.Reason != ReasonDeleted {
			t.Fatalf("expected deleted, got %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not notice the file was already gone")
	}
}

func TestPanickingSinkIsContainedUnderSupervisor(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.m3u8")
	good := filepath.Join(dir, "good.m3u8")
	writeFile(t, bad, manifest("seg1.ts"))
	writeFile(t, good, manifest("seg1.ts"))

	var panics atomic.Int32
	sink := &recordingSink{}
	flaky := dispatch.SinkFunc(func(ctx context.Context, u dispatch.Unit) error {
		if u.Playlist == bad && u.Segment.URI == "seg1.ts" {
			panics.Add(1)
			panic("sink blew up")
		}
		return sink.Dispatch(ctx, u)
	})

	sup := registry.NewSupervisor(registry.New(), 4)
	run := Runner(Options{QueueSize: 8, Sink: flaky})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	badHandle, _ := sup.Launch(ctx, bad, run)
	sup.Launch(ctx, good, run)

	waitFor(t, "panicking dispatch", func() bool { return panics.Load() == 1 })
	waitFor(t, "sibling dispatch", func() bool { return len(sink.got()) == 1 })

	writeFile(t, bad, manifest("seg1.ts", "seg2.ts"))
	waitFor(t, "dispatch after panic", func() bool { return len(sink.got()) == 2 })

	if err := os.Remove(bad); err != nil {
		t.Fatalf("remove: %v", err)
	}
	select {
	case <-badHandle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor with panicking sink was never released")
	}
	if badHandle.Err() != nil {
		t.Fatalf("expected clean exit after contained panic, got %v", badHandle.Err())
	}
	if !sup.Registry().Contains(good) {
		t.Fatal("expected sibling monitor to keep running")
	}

	cancel()
	sup.Wait()
	if sup.Registry().Len() != 0 {
		t.Fatalf("expected empty registry, got %d", sup.Registry().Len())
	}
}
