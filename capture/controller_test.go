package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
)

var errNoBrowser = errors.New("no browser installed")

type fakeProc struct {
	lines chan string
	sent  chan string
	done  chan struct{}

	once     sync.Once
	mu       sync.Mutex
	exited   bool
	closeErr error
}

func newFakeProc() *fakeProc {
	return &fakeProc{
		lines: make(chan string),
		sent:  make(chan string, 16),
		done:  make(chan struct{}),
	}
}

func (p *fakeProc) emit(lines ...string) {
	for _, l := range lines {
		p.lines <- l
	}
}

func (p *fakeProc) exit() {
	p.once.Do(func() {
		p.mu.Lock()
		p.exited = true
		p.mu.Unlock()
		close(p.lines)
		close(p.done)
	})
}

func (p *fakeProc) Lines() <-chan string  { return p.lines }
func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) ExitErr() error        { return nil }
func (p *fakeProc) PID() int              { return 4242 }

func (p *fakeProc) Send(line string) error {
	p.mu.Lock()
	exited := p.exited
	p.mu.Unlock()
	if exited {
		return errProcessNotRunning
	}
	p.sent <- line
	return nil
}

func (p *fakeProc) Close() error {
	p.exit()
	return p.closeErr
}

// expect reads the next command sent to the process. It is safe to call
// from helper goroutines.
func (p *fakeProc) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-p.sent:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Errorf("command %q was never sent", want)
	}
}

type fakeIngester struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeIngester) AppendFile(_ context.Context, path, label string) (gallery.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return gallery.Entry{}, f.err
	}
	f.calls = append(f.calls, path)
	return gallery.Entry{ID: int64(len(f.calls)), SourceLabel: label, StoragePath: strings.TrimSpace(path)}, nil
}

type harness struct {
	c        *Controller
	proc     *fakeProc
	ingester *fakeIngester

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{proc: newFakeProc(), ingester: &fakeIngester{}}
	if opts.Launcher == nil {
		opts.Launcher = func(context.Context, string) (Process, error) { return h.proc, nil }
	}
	opts.Ingester = h.ingester
	opts.OnEvent = func(ev Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
	}
	h.c = NewController(opts)
	t.Cleanup(func() { h.proc.exit() })
	return h
}

func (h *harness) eventsOf(typ EventType) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// start brings the harness session to Ready
func (h *harness) start(t *testing.T, url string) Snapshot {
	t.Helper()
	go h.proc.emit("STARTING_BROWSER", "NAVIGATING", "BROWSER_READY")
	snap, err := h.c.StartSession(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, Ready, snap.State)
	return snap
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.c.Snapshot().State == want }, 2*time.Second, 5*time.Millisecond)
}

func TestController_StartSessionReachesReadyDespiteNavError(t *testing.T) {
	h := newHarness(t, Options{})

	go h.proc.emit("STARTING_BROWSER", "NAVIGATING", "NAV_ERROR:net::ERR_NAME_NOT_RESOLVED\r", "BROWSER_READY\r\n")
	snap, err := h.c.StartSession(context.Background(), "example.invalid")
	require.NoError(t, err)

	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, "https://example.invalid", snap.URL)
	assert.Equal(t, 4242, snap.PID)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, "navigation failed: net::ERR_NAME_NOT_RESOLVED", snap.Warning)
	assert.Len(t, h.eventsOf(EventWarning), 1)
}

func TestController_SecondStartIsRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	_, err := h.c.StartSession(context.Background(), "https://other.example")
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, Ready, h.c.Snapshot().State)
}

func TestController_CommandsRejectedWhileIdle(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.c.CaptureMobile(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	err = h.c.Navigate(context.Background(), "https://example.com")
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, Idle, stateErr.State)

	assert.Equal(t, Idle, h.c.Snapshot().State)
	assert.Empty(t, h.events, "rejected commands have no side effects")
}

func TestController_CaptureSuccess(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	go func() {
		h.proc.expect(t, "CAPTURE")
		h.proc.emit("CAPTURING", "CAPTURE_SUCCESS:/tmp/capture_1.png\r")
	}()

	entry, err := h.c.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/capture_1.png", entry.StoragePath)
	assert.Equal(t, "https://example.com", entry.SourceLabel)
	assert.Equal(t, Ready, h.c.Snapshot().State)

	captured := h.eventsOf(EventCaptured)
	require.Len(t, captured, 1)
	assert.Equal(t, entry.ID, captured[0].Entry.ID)
}

func TestController_CaptureMobileOnBlankSession(t *testing.T) {
	h := newHarness(t, Options{})
	snap := h.start(t, "")
	assert.Equal(t, "about:blank", snap.URL)

	go func() {
		h.proc.expect(t, "CAPTURE_MOBILE")
		h.proc.emit("CAPTURING_MOBILE", "SETTING_VIEWPORT: 390x844", "KEPT_MOBILE_VIEW", "CAPTURE_SUCCESS:/tmp/capture_mobile_1.png")
	}()

	entry, err := h.c.CaptureMobile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Session "+snap.SessionID[:8], entry.SourceLabel)
}

func TestController_CaptureErrorReturnsToReady(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	go func() {
		h.proc.expect(t, "CAPTURE")
		h.proc.emit("CAPTURING", "CAPTURE_ERROR:Protocol error: Target closed")
	}()

	_, err := h.c.Capture(context.Background())
	var capErr *CaptureError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "Protocol error: Target closed", capErr.Message)
	assert.Equal(t, Ready, h.c.Snapshot().State)
	assert.Empty(t, h.ingester.calls)
}

func TestController_IngestFailureIsCaptureError(t *testing.T) {
	h := newHarness(t, Options{})
	h.ingester.err = errors.New("disk full")
	h.start(t, "https://example.com")

	go func() {
		h.proc.expect(t, "CAPTURE")
		h.proc.emit("CAPTURE_SUCCESS:/tmp/capture_1.png")
	}()

	_, err := h.c.Capture(context.Background())
	var capErr *CaptureError
	assert.ErrorAs(t, err, &capErr)
	assert.Equal(t, Ready, h.c.Snapshot().State)
}

func TestController_SecondCommandIsBusy(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	result := make(chan error, 1)
	go func() {
		_, err := h.c.Capture(context.Background())
		result <- err
	}()
	h.proc.expect(t, "CAPTURE")
	h.waitState(t, Capturing)

	_, err := h.c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, h.c.Navigate(context.Background(), "https://other.example"), ErrBusy)
	assert.True(t, h.c.Snapshot().Busy)

	h.proc.emit("CAPTURE_SUCCESS:/tmp/capture_1.png")
	require.NoError(t, <-result)
}

func TestController_NavigateBlocksCapture(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	result := make(chan error, 1)
	go func() { result <- h.c.Navigate(context.Background(), "other.example") }()
	h.proc.expect(t, "GOTO:https://other.example")

	_, err := h.c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	h.proc.emit("NAVIGATED")
	require.NoError(t, <-result)
	assert.Equal(t, "https://other.example", h.c.Snapshot().URL)
	assert.Equal(t, Ready, h.c.Snapshot().State)
}

func TestController_NavigateFailureKeepsSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	go func() {
		h.proc.expect(t, "GOTO:https://bad.example")
		h.proc.emit("NAV_ERROR")
	}()

	err := h.c.Navigate(context.Background(), "https://bad.example")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, "https://bad.example", navErr.URL)

	snap := h.c.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, "https://example.com", snap.URL)
}

func TestController_TimeoutDiscardsLateReply(t *testing.T) {
	h := newHarness(t, Options{CaptureTimeout: 50 * time.Millisecond})
	h.start(t, "https://example.com")

	_, err := h.c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrProtocolTimeout)
	assert.Equal(t, Ready, h.c.Snapshot().State)
	h.proc.expect(t, "CAPTURE")

	go func() {
		h.proc.expect(t, "CAPTURE")
		h.proc.emit("CAPTURE_SUCCESS:/tmp/late.png", "CAPTURE_SUCCESS:/tmp/fresh.png")
	}()

	entry, err := h.c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fresh.png", entry.StoragePath, "the late reply belongs to the abandoned command")
}

func TestController_LateCaptureFileIsRemoved(t *testing.T) {
	h := newHarness(t, Options{CaptureTimeout: 50 * time.Millisecond})
	h.start(t, "https://example.com")

	dir := t.TempDir()
	late, fresh := filepath.Join(dir, "late.png"), filepath.Join(dir, "fresh.png")
	require.NoError(t, os.WriteFile(late, []byte("late"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("fresh"), 0644))

	_, err := h.c.Capture(context.Background())
	require.ErrorIs(t, err, ErrProtocolTimeout)
	h.proc.expect(t, "CAPTURE")

	go func() {
		h.proc.expect(t, "CAPTURE")
		h.proc.emit("CAPTURE_SUCCESS:"+late, "CAPTURE_SUCCESS:"+fresh)
	}()

	entry, err := h.c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, entry.StoragePath)
	assert.NoFileExists(t, late)
	assert.FileExists(t, fresh)
}

func TestController_CancelledCaptureIsAbandoned(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		h.proc.expect(t, "CAPTURE")
		cancel()
	}()

	_, err := h.c.Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Ready, h.c.Snapshot().State)
	assert.False(t, h.c.Snapshot().Busy)
}

func TestController_ExitDuringCaptureResolvesPending(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	go func() {
		h.proc.expect(t, "CAPTURE")
		h.proc.exit()
	}()

	_, err := h.c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	h.waitState(t, Closed)
}

func TestController_BrowserClosedByUser(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	go h.proc.emit("BROWSER_CLOSED")
	h.waitState(t, Closed)

	_, err := h.c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestController_StopResolvesPendingAndAllowsRestart(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	result := make(chan error, 1)
	go func() {
		_, err := h.c.Capture(context.Background())
		result <- err
	}()
	h.proc.expect(t, "CAPTURE")
	h.waitState(t, Capturing)

	require.NoError(t, h.c.Stop(context.Background()))
	assert.ErrorIs(t, <-result, ErrSessionClosed)
	h.proc.expect(t, "EXIT")
	assert.Equal(t, Closed, h.c.Snapshot().State)

	// Stopping a closed session is rejected
	assert.ErrorIs(t, h.c.Stop(context.Background()), ErrInvalidState)

	h.proc = newFakeProc()
	h.start(t, "https://example.com")
}

func TestController_FatalErrorFailsLaunch(t *testing.T) {
	h := newHarness(t, Options{})

	go h.proc.emit("STARTING_BROWSER", "FATAL_ERROR:Failed to launch the browser process")
	_, err := h.c.StartSession(context.Background(), "https://example.com")

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Contains(t, launchErr.Message, "Failed to launch")
	h.waitState(t, Closed)
}

func TestController_LauncherErrorFailsLaunch(t *testing.T) {
	h := newHarness(t, Options{
		Launcher: func(context.Context, string) (Process, error) { return nil, errNoBrowser },
	})

	_, err := h.c.StartSession(context.Background(), "https://example.com")
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.ErrorIs(t, err, errNoBrowser)
	assert.Equal(t, Closed, h.c.Snapshot().State)
}

func TestController_LaunchTimeout(t *testing.T) {
	h := newHarness(t, Options{LaunchTimeout: 50 * time.Millisecond})

	_, err := h.c.StartSession(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrProtocolTimeout)
	h.waitState(t, Closed)
}

func TestController_UnknownLinesAreDiagnostic(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "https://example.com")

	go func() {
		h.proc.emit("(node:123) DeprecationWarning: something", "capture_success:/nope", "")
		h.proc.expect(t, "CAPTURE")
		h.proc.emit("CAPTURE_SUCCESS:/tmp/capture_1.png")
	}()

	entry, err := h.c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/capture_1.png", entry.StoragePath)
}

func TestController_ShutdownIdle(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Shutdown(context.Background()))
	assert.Equal(t, Idle, h.c.Snapshot().State)
}
