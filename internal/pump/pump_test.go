package pump

import (
	"sync"
	"testing"
	"time"

	"github.com/example/frameview/internal/blob"
	"github.com/example/frameview/internal/frame"
	"github.com/example/frameview/internal/state"
)

// --- Test doubles ---

type testSurface struct {
	mu       sync.Mutex
	mounted  bool
	autoLoad bool
	sources  []blob.Handle
	onLoads  []func()
}

func (s *testSurface) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *testSurface) SetSource(h blob.Handle, onLoad func()) {
	s.mu.Lock()
	s.sources = append(s.sources, h)
	s.onLoads = append(s.onLoads, onLoad)
	auto := s.autoLoad
	s.mu.Unlock()
	if auto {
		onLoad()
	}
}

func (s *testSurface) assigned() []blob.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blob.Handle(nil), s.sources...)
}

func (s *testSurface) completeLast() {
	s.mu.Lock()
	fn := s.onLoads[len(s.onLoads)-1]
	s.mu.Unlock()
	fn()
}

// trackingStore wraps blob.Store and records payloads and live-count violations.
type trackingStore struct {
	*blob.Store
	mu         sync.Mutex
	payloads   []string
	violations int
}

func newTrackingStore() *trackingStore {
	return &trackingStore{Store: blob.NewStore()}
}

func (s *trackingStore) Create(data []byte, mime string) blob.Handle {
	h := s.Store.Create(data, mime)
	s.mu.Lock()
	s.payloads = append(s.payloads, string(data))
	if s.Store.Live() > 1 {
		s.violations++
	}
	s.mu.Unlock()
	return h
}

func (s *trackingStore) created() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type quietLogger struct{ t *testing.T }

func (l quietLogger) Debugf(format string, args ...any) { l.t.Logf("DEBUG: "+format, args...) }
func (l quietLogger) Infof(format string, args ...any)  { l.t.Logf("INFO: "+format, args...) }
func (l quietLogger) Errorf(format string, args ...any) { l.t.Logf("ERROR: "+format, args...) }

func msg(ts, fps float64, payload string) []byte {
	return frame.Encode(frame.Frame{Timestamp: ts, ServerFPS: fps, Image: []byte(payload)})
}

type fixture struct {
	pump    *Pump
	surface *testSurface
	store   *trackingStore
	state   *state.Published
	clock   *fakeClock
}

func newFixture(t *testing.T, mounted bool, opts ...Option) *fixture {
	f := &fixture{
		surface: &testSurface{mounted: mounted, autoLoad: true},
		store:   newTrackingStore(),
		state:   &state.Published{},
		clock:   newFakeClock(),
	}
	opts = append([]Option{WithClock(f.clock.Now), WithLogger(quietLogger{t})}, opts...)
	f.pump = New(f.surface, f.store, f.state, opts...)
	return f
}

// --- Tests ---

func TestCoalescesPendingMessages(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	f := newFixture(t, true, WithOnMessage(func(raw []byte) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// A truncated message holds the guard without creating a handle.
		f.pump.OnRawMessage([]byte{1, 2, 3})
	}()
	<-entered

	f.pump.OnRawMessage(msg(1.0, 30.0, "X"))
	f.pump.OnRawMessage(msg(2.0, 31.0, "Y"))
	close(release)
	<-done

	if got := f.store.created(); len(got) != 1 || got[0] != "Y" {
		t.Fatalf("created payloads = %q, want [Y]", got)
	}
	if ts, _ := f.state.FrameTimestamp.Get(); ts != 2.0 {
		t.Errorf("published timestamp = %v, want 2", ts)
	}
	if fps, _ := f.state.ServerFPS.Get(); fps != 31.0 {
		t.Errorf("published server fps = %v, want 31", fps)
	}

	st := f.pump.Stats()
	if st.Superseded != 1 {
		t.Errorf("Superseded = %d, want 1", st.Superseded)
	}
	if st.Received != 3 || st.Drained != 2 {
		t.Errorf("Received/Drained = %d/%d, want 3/2", st.Received, st.Drained)
	}
}

func TestAtMostOneLiveHandle(t *testing.T) {
	f := newFixture(t, true)

	for i := 0; i < 50; i++ {
		f.pump.OnRawMessage(msg(float64(i), 30, "frame"))
		if live := f.store.Live(); live != 1 {
			t.Fatalf("after frame %d Live = %d, want 1", i, live)
		}
	}
	if f.store.violations != 0 {
		t.Errorf("observed %d moments with more than one live handle", f.store.violations)
	}

	held, ok := f.pump.Held()
	if !ok {
		t.Fatal("no held handle after frames")
	}
	srcs := f.surface.assigned()
	if srcs[len(srcs)-1] != held {
		t.Errorf("held %q, surface source %q", held, srcs[len(srcs)-1])
	}

	f.pump.OnClose()
	if live := f.store.Live(); live != 0 {
		t.Errorf("after close Live = %d, want 0", live)
	}
	if _, ok := f.pump.Held(); ok {
		t.Error("handle still held after close")
	}

	st := f.store.Stats()
	if st.Created != st.Released {
		t.Errorf("created %d, released %d", st.Created, st.Released)
	}
}

func TestUnmountedSurfaceReleasesImmediately(t *testing.T) {
	f := newFixture(t, false)

	f.pump.OnRawMessage(msg(5, 25, "img"))

	if got := f.store.created(); len(got) != 1 {
		t.Fatalf("created %d handles, want 1", len(got))
	}
	if live := f.store.Live(); live != 0 {
		t.Errorf("Live = %d, want 0", live)
	}
	if len(f.surface.assigned()) != 0 {
		t.Error("surface was assigned while unmounted")
	}
	if _, ok := f.pump.Held(); ok {
		t.Error("pump holds a handle for an unmounted surface")
	}
	if ts, ok := f.state.FrameTimestamp.Get(); !ok || ts != 5 {
		t.Errorf("timestamp = (%v, %v), want (5, true)", ts, ok)
	}
	if f.pump.Stats().Unmounted != 1 {
		t.Errorf("Unmounted = %d, want 1", f.pump.Stats().Unmounted)
	}
}

func TestTruncatedFrameDropped(t *testing.T) {
	f := newFixture(t, true)

	f.pump.OnRawMessage(make([]byte, frame.HeaderSize-1))

	if len(f.store.created()) != 0 {
		t.Fatal("handle created for truncated frame")
	}
	if _, ok := f.state.FrameTimestamp.Get(); ok {
		t.Error("timestamp published for truncated frame")
	}
	if f.pump.Draining() {
		t.Fatal("guard still held after truncated frame")
	}
	if f.pump.Stats().Truncated != 1 {
		t.Errorf("Truncated = %d, want 1", f.pump.Stats().Truncated)
	}

	f.pump.OnRawMessage(msg(7, 30, "ok"))
	if got := f.store.created(); len(got) != 1 || got[0] != "ok" {
		t.Errorf("created = %q, want [ok]", got)
	}
}

func TestTruncatedFrameKeepsHeldHandle(t *testing.T) {
	f := newFixture(t, true)

	f.pump.OnRawMessage(msg(1, 30, "a"))
	before, _ := f.pump.Held()
	f.pump.OnRawMessage([]byte{0})
	after, ok := f.pump.Held()

	if !ok || after != before {
		t.Errorf("held = %q, want %q", after, before)
	}
	if f.store.Live() != 1 {
		t.Errorf("Live = %d, want 1", f.store.Live())
	}
}

func TestClientFPSWindow(t *testing.T) {
	f := newFixture(t, true)

	f.pump.OnRawMessage(msg(0, 30, "a"))
	for i := 0; i < 2; i++ {
		f.clock.Advance(300 * time.Millisecond)
		f.pump.OnRawMessage(msg(0, 30, "a"))
	}
	if _, ok := f.state.ClientFPS.Get(); ok {
		t.Fatal("client fps published before a full window")
	}

	f.clock.Advance(400 * time.Millisecond)
	f.pump.OnRawMessage(msg(0, 30, "a"))

	n, ok := f.state.ClientFPS.Get()
	if !ok || n != 4 {
		t.Fatalf("client fps = (%d, %v), want (4, true)", n, ok)
	}
	if count, _ := f.pump.Counter(); count != 0 {
		t.Errorf("counter = %d after sample, want 0", count)
	}

	f.clock.Advance(500 * time.Millisecond)
	f.pump.OnRawMessage(msg(0, 30, "a"))
	f.clock.Advance(600 * time.Millisecond)
	f.pump.OnRawMessage(msg(0, 30, "a"))
	if n, _ := f.state.ClientFPS.Get(); n != 2 {
		t.Errorf("second window client fps = %d, want 2", n)
	}
}

func TestCloseResetsState(t *testing.T) {
	closed := 0
	f := newFixture(t, true, WithOnClose(func() { closed++ }))

	f.pump.OnRawMessage(msg(1, 30, "a"))
	f.clock.Advance(time.Second)
	f.pump.OnRawMessage(msg(2, 30, "b"))
	if _, ok := f.state.ClientFPS.Get(); !ok {
		t.Fatal("client fps not published before close")
	}

	f.pump.OnClose()

	if closed != 1 {
		t.Errorf("close hook called %d times, want 1", closed)
	}
	if _, ok := f.state.ClientFPS.Get(); ok {
		t.Error("client fps should be unknown after close")
	}
	count, last := f.pump.Counter()
	if count != 0 || !last.IsZero() {
		t.Errorf("counter = (%d, %v), want (0, zero)", count, last)
	}
	if !f.pump.ImgLoading() {
		t.Error("loading flag should be set after close")
	}
	if f.pump.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", f.pump.Phase())
	}

	// The window restarts empty: one frame opens it, a second one a full
	// second later closes it with a count of 2.
	f.clock.Advance(5 * time.Second)
	f.pump.OnRawMessage(msg(3, 30, "c"))
	if _, ok := f.state.ClientFPS.Get(); ok {
		t.Error("client fps published by the first frame after close")
	}
	if count, _ := f.pump.Counter(); count != 1 {
		t.Errorf("counter = %d after first frame, want 1", count)
	}
	f.clock.Advance(time.Second)
	f.pump.OnRawMessage(msg(4, 30, "d"))
	if n, _ := f.state.ClientFPS.Get(); n != 2 {
		t.Errorf("client fps = %d, want 2", n)
	}
}

func TestReadinessLifecycle(t *testing.T) {
	f := newFixture(t, true)
	f.surface.autoLoad = false

	if f.pump.ImgInitted() || !f.pump.ImgLoading() || f.pump.Phase() != PhaseIdle {
		t.Fatalf("initial = (initted %v, loading %v, %v), want (false, true, idle)",
			f.pump.ImgInitted(), f.pump.ImgLoading(), f.pump.Phase())
	}

	f.pump.OnRawMessage(msg(1, 30, "a"))
	if f.pump.Phase() != PhaseLoading || !f.pump.ImgLoading() {
		t.Errorf("after first assign = (%v, loading %v), want (loading, true)", f.pump.Phase(), f.pump.ImgLoading())
	}

	f.surface.completeLast()
	if f.pump.Phase() != PhaseReady || f.pump.ImgLoading() || !f.pump.ImgInitted() {
		t.Errorf("after load = (%v, loading %v, initted %v), want (ready, false, true)",
			f.pump.Phase(), f.pump.ImgLoading(), f.pump.ImgInitted())
	}

	f.pump.OnRawMessage(msg(2, 30, "b"))
	if f.pump.Phase() != PhaseLoading {
		t.Errorf("after second assign phase = %v, want loading", f.pump.Phase())
	}

	f.pump.OnClose()
	if !f.pump.ImgLoading() || !f.pump.ImgInitted() {
		t.Errorf("after close = (loading %v, initted %v), want (true, true)", f.pump.ImgLoading(), f.pump.ImgInitted())
	}

	// Reconnect: initialized before and loading, so the assignment clears
	// loading before the load completes.
	f.pump.OnRawMessage(msg(3, 30, "c"))
	if f.pump.ImgLoading() {
		t.Error("loading flag not cleared optimistically after reconnect")
	}
	if f.pump.Phase() != PhaseLoading {
		t.Errorf("phase = %v, want loading", f.pump.Phase())
	}

	f.surface.completeLast()
	if f.pump.ImgLoading() || f.pump.Phase() != PhaseReady {
		t.Errorf("after completion = (loading %v, %v), want (false, ready)", f.pump.ImgLoading(), f.pump.Phase())
	}
}

func TestLoadCompletionAfterCloseIgnored(t *testing.T) {
	f := newFixture(t, true)
	f.surface.autoLoad = false

	f.pump.OnRawMessage(msg(1, 30, "a"))
	f.pump.OnClose()
	f.surface.completeLast()

	if !f.pump.ImgLoading() {
		t.Error("late completion cleared the loading flag of a closed stream")
	}
	if f.pump.ImgInitted() {
		t.Error("late completion marked the surface initialized")
	}
}

func TestOnMessageSeesRawBuffer(t *testing.T) {
	var seen [][]byte
	f := newFixture(t, true, WithOnMessage(func(raw []byte) { seen = append(seen, raw) }))

	a := msg(1, 30, "a")
	short := []byte{9, 9}
	f.pump.OnRawMessage(a)
	f.pump.OnRawMessage(short)

	if len(seen) != 2 {
		t.Fatalf("hook saw %d messages, want 2", len(seen))
	}
	if string(seen[0]) != string(a) || string(seen[1]) != string(short) {
		t.Error("hook did not receive the raw buffers verbatim")
	}
}

func TestPanicReleasesGuard(t *testing.T) {
	calls := 0
	f := newFixture(t, true, WithOnMessage(func([]byte) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	}))

	f.pump.OnRawMessage(msg(1, 30, "a"))
	if f.pump.Draining() {
		t.Fatal("guard held after panic")
	}
	f.pump.OnRawMessage(msg(2, 30, "b"))

	if got := f.store.created(); len(got) != 1 || got[0] != "b" {
		t.Errorf("created = %q, want [b]", got)
	}
	if f.pump.Stats().Panics != 1 {
		t.Errorf("Panics = %d, want 1", f.pump.Stats().Panics)
	}
}

func TestConcurrentDelivery(t *testing.T) {
	f := newFixture(t, true)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f.pump.OnRawMessage(msg(float64(g*1000+i), 30, "x"))
			}
		}(g)
	}
	wg.Wait()

	st := f.pump.Stats()
	if st.Received != 1600 {
		t.Errorf("Received = %d, want 1600", st.Received)
	}
	if st.Drained+st.Superseded != st.Received {
		t.Errorf("drained %d + superseded %d != received %d", st.Drained, st.Superseded, st.Received)
	}
	if f.pump.Draining() {
		t.Error("guard still held after all deliveries returned")
	}
	if f.store.violations != 0 {
		t.Errorf("observed %d moments with more than one live handle", f.store.violations)
	}
	if live := f.store.Live(); live != 1 {
		t.Errorf("Live = %d, want 1", live)
	}
}
