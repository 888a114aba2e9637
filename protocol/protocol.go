// Package protocol is the line-oriented control channel between the session
// controller and the capture process. Every message is one UTF-8 line.
package protocol

import (
	"net/url"
	"strings"
	"time"
)

// Command is a line sent to the capture process on stdin
type Command string

const (
	CmdCapture       Command = "CAPTURE"
	CmdCaptureMobile Command = "CAPTURE_MOBILE"
	CmdExit          Command = "EXIT"
	cmdGotoPrefix            = "GOTO:"
)

// Goto builds the navigation command for url
func Goto(url string) Command {
	return Command(cmdGotoPrefix + url)
}

// ParseCommand splits a received command line into its verb and argument
func ParseCommand(line string) (Command, string) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, cmdGotoPrefix); ok {
		return Command(cmdGotoPrefix), strings.TrimSpace(rest)
	}
	return Command(line), ""
}

// IsGoto reports whether c is a navigation command verb
func (c Command) IsGoto() bool {
	return strings.HasPrefix(string(c), cmdGotoPrefix)
}

// Kind is the head token of a status line
type Kind string

const (
	StartingBrowser Kind = "STARTING_BROWSER"
	Navigating      Kind = "NAVIGATING"
	BrowserReady    Kind = "BROWSER_READY"
	NavError        Kind = "NAV_ERROR"
	Navigated       Kind = "NAVIGATED"
	Capturing       Kind = "CAPTURING"
	CapturingMobile Kind = "CAPTURING_MOBILE"
	CaptureSuccess  Kind = "CAPTURE_SUCCESS"
	CaptureError    Kind = "CAPTURE_ERROR"
	BrowserClosed   Kind = "BROWSER_CLOSED"
	FatalError      Kind = "FATAL_ERROR"

	// Diagnostic covers every line outside the vocabulary above
	Diagnostic Kind = "DIAGNOSTIC"
)

// Lines the capture process prints for humans; they carry no protocol meaning
const (
	SettingViewport        = "SETTING_VIEWPORT"
	CurrentViewport        = "CURRENT_VIEWPORT"
	TakingMobileScreenshot = "TAKING_MOBILE_SCREENSHOT"
	KeptMobileView         = "KEPT_MOBILE_VIEW"
)

var known = map[Kind]bool{
	StartingBrowser: true,
	Navigating:      true,
	BrowserReady:    true,
	NavError:        true,
	Navigated:       true,
	Capturing:       true,
	CapturingMobile: true,
	CaptureSuccess:  true,
	CaptureError:    true,
	BrowserClosed:   true,
	FatalError:      true,
}

// Family groups statuses by the command they answer
type Family int

const (
	FamilyNone Family = iota
	FamilyNavigate
	FamilyCapture
	FamilyLifecycle
	FamilyProgress
)

// Status is a parsed status line
type Status struct {
	Kind    Kind
	Payload string
	Raw     string
}

// Family returns the command family the status belongs to
func (s Status) Family() Family {
	switch s.Kind {
	case Navigated, NavError:
		return FamilyNavigate
	case CaptureSuccess, CaptureError:
		return FamilyCapture
	case BrowserReady, BrowserClosed, FatalError:
		return FamilyLifecycle
	case StartingBrowser, Navigating, Capturing, CapturingMobile:
		return FamilyProgress
	}
	return FamilyNone
}

// ParseLine classifies one received line. Surrounding whitespace, including
// CR/LF noise, is ignored. The head token before the first ':' must match the
// vocabulary exactly; anything else is a Diagnostic.
func ParseLine(line string) Status {
	line = strings.TrimSpace(line)
	head, payload, _ := strings.Cut(line, ":")

	kind := Kind(head)
	if !known[kind] {
		return Status{Kind: Diagnostic, Payload: line, Raw: line}
	}
	return Status{Kind: kind, Payload: strings.TrimSpace(payload), Raw: line}
}

// Format renders a status line (without the trailing newline)
func Format(kind Kind, payload string) string {
	if payload == "" {
		return string(kind)
	}
	return string(kind) + ":" + payload
}

// Viewport describes an emulated device
type Viewport struct {
	Width             int
	Height            int
	DeviceScaleFactor float64
	Mobile            bool
	Touch             bool
	UserAgent         string
	Settle            time.Duration
}

// MobileViewport is the device emulated by CAPTURE_MOBILE. It is left in
// place after the capture.
var MobileViewport = Viewport{
	Width:             390,
	Height:            844,
	DeviceScaleFactor: 1,
	Mobile:            true,
	Touch:             true,
	UserAgent:         "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	Settle:            2 * time.Second,
}

// DesktopSettle is the pause after injecting the capture stylesheet
const DesktopSettle = 100 * time.Millisecond

// HideScrollbarsCSS is injected before a desktop capture
const HideScrollbarsCSS = `::-webkit-scrollbar { display: none !important; }
html, body { scrollbar-width: none !important; -ms-overflow-style: none !important; }`

// BlankPage is opened when a session starts without a URL
const BlankPage = "about:blank"

// NormalizeURL trims raw, maps empty input to BlankPage and prefixes
// scheme-less input with https://.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return BlankPage
	case strings.HasPrefix(raw, "about:"),
		strings.HasPrefix(raw, "http://"),
		strings.HasPrefix(raw, "https://"),
		strings.HasPrefix(raw, "file://"):
		return raw
	}
	return "https://" + raw
}

// Hostname returns the host of a URL for display labels, or the input when
// it has none.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
