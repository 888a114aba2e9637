// Package worker is the capture process: it owns one page and answers the
// control protocol on stdin/stdout until told to exit or the page goes away.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/protocol"
)

// Page is the rendering surface driven by the worker
type Page interface {
	Navigate(ctx context.Context, url string) error
	InjectCSS(ctx context.Context, css string) error
	Emulate(ctx context.Context, vp protocol.Viewport) error
	// Screenshot returns a full-page PNG
	Screenshot(ctx context.Context) ([]byte, error)
	// Closed is closed once the user closes the surface
	Closed() <-chan struct{}
	Close() error
}

// Opener launches the page
type Opener func(ctx context.Context) (Page, error)

// Config configures Run
type Config struct {
	// OutDir receives capture_<ms>.png files
	OutDir     string
	NavTimeout time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// FatalError is returned when the page could not be opened
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "capture worker: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Run executes the control protocol. Every status line, failures included,
// goes to out in order; diagnostics go to the log. url is opened before
// BROWSER_READY is printed; a navigation failure there is reported and does
// not stop the worker. EOF on in is treated like EXIT.
func Run(ctx context.Context, open Opener, url string, cfg Config, in io.Reader, out io.Writer) error {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.sleep == nil {
		cfg.sleep = sleep
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &runner{cfg: cfg, out: &lineWriter{w: out}}
	r.out.status(protocol.StartingBrowser, "")

	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		r.out.status(protocol.FatalError, err.Error())
		return &FatalError{Err: err}
	}

	page, err := open(ctx)
	if err != nil {
		r.out.status(protocol.FatalError, err.Error())
		return &FatalError{Err: err}
	}
	defer page.Close()
	r.page = page

	if url != "" {
		r.out.status(protocol.Navigating, "")
		if err := r.navigate(ctx, url); err != nil {
			r.out.status(protocol.NavError, err.Error())
		}
	}

	r.out.status(protocol.BrowserReady, "")

	commands := make(chan string)
	go func() {
		defer close(commands)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case commands <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-page.Closed():
			r.out.status(protocol.BrowserClosed, "")
			return nil
		case line, ok := <-commands:
			if !ok {
				log.Info().Msg("stdin closed, exiting")
				return nil
			}
			if done := r.handle(ctx, line); done {
				return nil
			}
		}
	}
}

type runner struct {
	cfg  Config
	page Page
	out  *lineWriter
}

// handle runs one command, reporting whether the worker should exit
func (r *runner) handle(ctx context.Context, line string) bool {
	verb, arg := protocol.ParseCommand(line)
	switch {
	case verb == protocol.CmdCapture:
		r.capture(ctx, false)
	case verb == protocol.CmdCaptureMobile:
		r.capture(ctx, true)
	case verb.IsGoto():
		if err := r.navigate(ctx, arg); err != nil {
			r.out.status(protocol.NavError, err.Error())
			return false
		}
		r.out.status(protocol.Navigated, "")
	case verb == protocol.CmdExit:
		log.Info().Msg("exit requested")
		return true
	case verb == "":
	default:
		log.Debug().Str("command", line).Msg("ignoring unknown command")
	}
	return false
}

func (r *runner) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()
	return r.page.Navigate(navCtx, url)
}

func (r *runner) capture(ctx context.Context, mobile bool) {
	path, err := r.shoot(ctx, mobile)
	if err != nil {
		log.Warn().Err(err).Bool("mobile", mobile).Msg("capture failed")
		r.out.status(protocol.CaptureError, err.Error())
		return
	}
	r.out.status(protocol.CaptureSuccess, path)
}

func (r *runner) shoot(ctx context.Context, mobile bool) (string, error) {
	prefix := "capture"
	if mobile {
		prefix = "capture_mobile"
		vp := protocol.MobileViewport

		r.out.status(protocol.CapturingMobile, "")
		r.out.line(fmt.Sprintf("%s: %dx%d", protocol.SettingViewport, vp.Width, vp.Height))
		if err := r.page.Emulate(ctx, vp); err != nil {
			return "", fmt.Errorf("set mobile viewport: %w", err)
		}
		r.cfg.sleep(ctx, vp.Settle)
		r.out.line(fmt.Sprintf("%s: %dx%d@%g", protocol.CurrentViewport, vp.Width, vp.Height, vp.DeviceScaleFactor))
		r.out.line(protocol.TakingMobileScreenshot)
	} else {
		r.out.status(protocol.Capturing, "")
		if err := r.page.InjectCSS(ctx, protocol.HideScrollbarsCSS); err != nil {
			log.Debug().Err(err).Msg("could not hide scrollbars")
		}
		r.cfg.sleep(ctx, protocol.DesktopSettle)
	}

	data, err := r.page.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	path, err := filepath.Abs(filepath.Join(r.cfg.OutDir, fmt.Sprintf("%s_%d.png", prefix, r.cfg.now().UnixMilli())))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}

	if mobile {
		r.out.line(protocol.KeptMobileView)
	}
	log.Info().Str("path", path).Int("bytes", len(data)).Msg("screenshot written")
	return path, nil
}

// lineWriter writes whole protocol lines
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) line(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, s+"\n"); err != nil {
		log.Debug().Err(err).Msg("could not write status line")
	}
}

func (l *lineWriter) status(kind protocol.Kind, payload string) {
	l.line(protocol.Format(kind, payload))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
