package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/screenshot-taker/protocol"
)

type fakePage struct {
	mu        sync.Mutex
	navigated []string
	css       []string
	viewports []protocol.Viewport
	shots     int

	navErr  error
	shotErr error
	closed  chan struct{}
	closes  int
}

func newFakePage() *fakePage {
	return &fakePage{closed: make(chan struct{})}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) InjectCSS(_ context.Context, css string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.css = append(p.css, css)
	return nil
}

func (p *fakePage) Emulate(_ context.Context, vp protocol.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewports = append(p.viewports, vp)
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	p.shots++
	return []byte("\x89PNG"), nil
}

func (p *fakePage) Closed() <-chan struct{} { return p.closed }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	ms := int64(1700000000000)
	return Config{
		OutDir: t.TempDir(),
		now: func() time.Time {
			ms++
			return time.UnixMilli(ms)
		},
		sleep: func(context.Context, time.Duration) {},
	}
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func run(t *testing.T, page Page, cfg Config, url, input string) (stdout *bytes.Buffer, err error) {
	t.Helper()
	stdout = &bytes.Buffer{}
	open := func(context.Context) (Page, error) { return page, nil }
	err = Run(context.Background(), open, url, cfg, strings.NewReader(input), stdout)
	return stdout, err
}

func TestRun_Protocol(t *testing.T) {
	page := newFakePage()
	cfg := testConfig(t)

	stdout, err := run(t, page, cfg, "https://example.com", "CAPTURE\r\nCAPTURE_MOBILE\nGOTO:https://other.example\nEXIT\nCAPTURE\n")
	require.NoError(t, err)

	desktop := filepath.Join(cfg.OutDir, "capture_1700000000001.png")
	mobile := filepath.Join(cfg.OutDir, "capture_mobile_1700000000002.png")
	assert.Equal(t, []string{
		"STARTING_BROWSER",
		"NAVIGATING",
		"BROWSER_READY",
		"CAPTURING",
		"CAPTURE_SUCCESS:" + desktop,
		"CAPTURING_MOBILE",
		"SETTING_VIEWPORT: 390x844",
		"CURRENT_VIEWPORT: 390x844@1",
		"TAKING_MOBILE_SCREENSHOT",
		"KEPT_MOBILE_VIEW",
		"CAPTURE_SUCCESS:" + mobile,
		"NAVIGATED",
	}, lines(stdout))

	assert.FileExists(t, desktop)
	assert.FileExists(t, mobile)
	assert.Equal(t, []string{"https://example.com", "https://other.example"}, page.navigated)
	assert.Equal(t, []string{protocol.HideScrollbarsCSS}, page.css)
	require.Len(t, page.viewports, 1, "the mobile viewport is applied once and never restored")
	assert.Equal(t, protocol.MobileViewport, page.viewports[0])
	assert.Equal(t, 2, page.shots, "commands after EXIT are not served")
	assert.Equal(t, 1, page.closes)
}

func TestRun_NavErrorStillReady(t *testing.T) {
	page := newFakePage()
	page.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	stdout, err := run(t, page, testConfig(t), "https://nowhere.invalid", "GOTO:https://again.invalid\n")
	require.NoError(t, err)

	// The launch failure is ordered before BROWSER_READY on the same stream,
	// so it can never be read as the reply to a later GOTO
	assert.Equal(t, []string{
		"STARTING_BROWSER",
		"NAVIGATING",
		"NAV_ERROR:net::ERR_NAME_NOT_RESOLVED",
		"BROWSER_READY",
		"NAV_ERROR:net::ERR_NAME_NOT_RESOLVED",
	}, lines(stdout))
}

func TestRun_BlankStartSkipsNavigation(t *testing.T) {
	page := newFakePage()
	stdout, err := run(t, page, testConfig(t), "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"STARTING_BROWSER", "BROWSER_READY"}, lines(stdout))
	assert.Empty(t, page.navigated)
}

func TestRun_CaptureError(t *testing.T) {
	page := newFakePage()
	page.shotErr = errors.New("Target closed")

	stdout, err := run(t, page, testConfig(t), "", "CAPTURE\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"STARTING_BROWSER", "BROWSER_READY", "CAPTURING", "CAPTURE_ERROR:Target closed"}, lines(stdout))
}

func TestRun_OpenFailureIsFatal(t *testing.T) {
	stdout := &bytes.Buffer{}
	open := func(context.Context) (Page, error) { return nil, errors.New("chrome not found") }

	err := Run(context.Background(), open, "", testConfig(t), strings.NewReader(""), stdout)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, []string{"STARTING_BROWSER", "FATAL_ERROR:chrome not found"}, lines(stdout))
}

func TestRun_PageClosedByUser(t *testing.T) {
	page := newFakePage()
	in, inW := io.Pipe()
	defer inW.Close()

	stdout := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		open := func(context.Context) (Page, error) { return page, nil }
		done <- Run(context.Background(), open, "", testConfig(t), in, stdout)
	}()

	require.Eventually(t, func() bool { return strings.Contains(stdout.String(), "BROWSER_READY") }, 2*time.Second, 5*time.Millisecond)
	close(page.closed)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not notice the closed page")
	}
	assert.True(t, strings.HasSuffix(stdout.String(), "BROWSER_CLOSED\n"))
}

func TestRun_UnwritableOutDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	cfg := testConfig(t)
	cfg.OutDir = filepath.Join(blocker, "shots")
	stdout, err := run(t, newFakePage(), cfg, "", "")

	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
	got := lines(stdout)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[1], "FATAL_ERROR:"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
