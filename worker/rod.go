package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/protocol"
)

// RodOptions configures the local Chrome instance
type RodOptions struct {
	// ProfileDir persists cookies and logins between sessions
	ProfileDir string
	Headless   bool
	// Bin overrides the browser binary, otherwise rod finds or downloads one
	Bin string
}

// RodPage is a Page backed by a go-rod controlled Chrome tab
type RodPage struct {
	browser *rod.Browser
	page    *rod.Page

	closed    chan struct{}
	closeOnce sync.Once
}

// OpenRod returns an Opener launching Chrome with opts
func OpenRod(opts RodOptions) Opener {
	return func(ctx context.Context) (Page, error) {
		return NewRodPage(ctx, opts)
	}
}

// NewRodPage launches Chrome and opens a stealth tab. The profile directory
// is never cleaned up.
func NewRodPage(ctx context.Context, opts RodOptions) (*RodPage, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("hide-scrollbars").
		Set("start-maximized").
		Delete("enable-automation")
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	p := &RodPage{browser: b, page: page, closed: make(chan struct{})}
	go p.watch()

	log.Info().Str("control", u).Str("profile", opts.ProfileDir).Bool("headless", opts.Headless).Msg("browser launched")
	return p, nil
}

// watch closes p.closed when the tab is destroyed or the browser disconnects
func (p *RodPage) watch() {
	defer p.markClosed()

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(p.browser); err != nil {
		log.Debug().Err(err).Msg("target discovery unavailable")
	}

	targetID := p.page.TargetID
	wait := p.browser.EachEvent(func(e *proto.TargetTargetDestroyed) bool {
		return e.TargetID == targetID
	})
	wait()
}

func (p *RodPage) markClosed() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (p *RodPage) InjectCSS(ctx context.Context, css string) error {
	return p.page.Context(ctx).AddStyleTag("", css)
}

// Emulate applies vp. It stays in effect until replaced.
func (p *RodPage) Emulate(ctx context.Context, vp protocol.Viewport) error {
	page := p.page.Context(ctx)

	if vp.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: vp.UserAgent}); err != nil {
			return err
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		Mobile:            vp.Mobile,
	}); err != nil {
		return err
	}
	return proto.EmulationSetTouchEmulationEnabled{Enabled: vp.Touch}.Call(page)
}

func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *RodPage) Closed() <-chan struct{} {
	return p.closed
}

// Close shuts the browser down, leaving the profile directory in place
func (p *RodPage) Close() error {
	err := p.browser.Close()
	p.markClosed()
	return err
}
