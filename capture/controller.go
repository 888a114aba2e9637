package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/protocol"
)

const (
	DefaultLaunchTimeout   = 90 * time.Second
	DefaultCaptureTimeout  = 60 * time.Second
	DefaultNavigateTimeout = 60 * time.Second
)

// Ingester receives the files produced by successful captures
type Ingester interface {
	AppendFile(ctx context.Context, path, sourceLabel string) (gallery.Entry, error)
}

// EventType identifies a controller event
type EventType string

const (
	EventStateChanged EventType = "state"
	EventWarning      EventType = "warning"
	EventCaptured     EventType = "captured"
)

// Event is delivered to Options.OnEvent outside the controller lock
type Event struct {
	Type      EventType
	SessionID string
	State     State
	Message   string
	Entry     *gallery.Entry
}

// Options configures a Controller
type Options struct {
	Launcher Launcher
	Ingester Ingester

	LaunchTimeout   time.Duration
	CaptureTimeout  time.Duration
	NavigateTimeout time.Duration

	OnEvent  func(Event)
	OnStatus func(protocol.Status)
}

// Session is the controller-side record of one capture process
type Session struct {
	ID        uuid.UUID
	URL       string
	StartedAt time.Time

	proc      Process
	ready     chan error
	readyOnce sync.Once
}

func (s *Session) signalReady(err error) {
	s.readyOnce.Do(func() { s.ready <- err })
}

// Snapshot is a point-in-time view of the controller
type Snapshot struct {
	State     State     `json:"state"`
	SessionID string    `json:"sessionId,omitempty"`
	PID       int       `json:"pid,omitempty"`
	URL       string    `json:"url,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Warning   string    `json:"warning,omitempty"`
	Busy      bool      `json:"busy"`
}

type reply struct {
	status protocol.Status
	err    error
}

// request is one command awaiting its terminal status line
type request struct {
	family protocol.Family
	reply  chan reply
}

func (r *request) resolve(rep reply) {
	r.reply <- rep
}

// Controller supervises at most one capture process. Exactly one command may
// be outstanding; a second one is rejected with ErrBusy.
type Controller struct {
	opts Options

	mu      sync.Mutex
	state   State
	session *Session
	pending *request
	// stale counts terminal replies still owed to abandoned commands
	stale   map[protocol.Family]int
	warning string
}

// NewController creates an idle controller
func NewController(opts Options) *Controller {
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = DefaultLaunchTimeout
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultCaptureTimeout
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = DefaultNavigateTimeout
	}
	return &Controller{
		opts:  opts,
		state: Idle,
		stale: make(map[protocol.Family]int),
	}
}

func (c *Controller) emit(ev Event) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

func (c *Controller) emitState(sess *Session, state State) {
	ev := Event{Type: EventStateChanged, State: state}
	if sess != nil {
		ev.SessionID = sess.ID.String()
	}
	c.emit(ev)
}

// StartSession launches a capture process on rawURL (a blank surface when
// empty) and waits for it to become ready. A navigation failure during launch
// does not fail the call; it is reported as a warning.
//
// If ctx ends first the launch carries on in the background and ctx.Err() is
// returned.
func (c *Controller) StartSession(ctx context.Context, rawURL string) (Snapshot, error) {
	url := protocol.NormalizeURL(rawURL)

	c.mu.Lock()
	next, ok := Transition(c.state, InputLaunch)
	if !ok {
		state := c.state
		c.mu.Unlock()
		if state.Live() {
			return Snapshot{}, ErrSessionActive
		}
		return Snapshot{}, &StateError{Op: "start session", State: state}
	}
	sess := &Session{
		ID:        uuid.New(),
		URL:       url,
		StartedAt: time.Now(),
		ready:     make(chan error, 1),
	}
	c.state = next
	c.session = sess
	c.warning = ""
	clear(c.stale)
	c.mu.Unlock()

	log.Info().Str("session", sess.ID.String()).Str("url", url).Msg("starting capture session")
	c.emitState(sess, next)

	proc, err := c.opts.Launcher(ctx, url)
	if err != nil {
		launchErr := &LaunchError{Message: "could not spawn capture process", Cause: err}
		c.terminate(sess, InputLaunchFailed, launchErr)
		return Snapshot{}, launchErr
	}

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		proc.Close()
		return Snapshot{}, ErrSessionClosed
	}
	sess.proc = proc
	c.mu.Unlock()

	go c.run(sess, proc)
	time.AfterFunc(c.opts.LaunchTimeout, func() { c.launchDeadline(sess) })

	select {
	case err := <-sess.ready:
		if err != nil {
			return Snapshot{}, err
		}
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

func (c *Controller) launchDeadline(sess *Session) {
	c.mu.Lock()
	stillLaunching := c.session == sess && c.state == Launching
	c.mu.Unlock()
	if !stillLaunching {
		return
	}

	log.Warn().Str("session", sess.ID.String()).Dur("timeout", c.opts.LaunchTimeout).Msg("capture process never became ready")
	if c.terminate(sess, InputLaunchFailed, &LaunchError{Message: "no ready signal", Cause: ErrProtocolTimeout}) {
		go sess.proc.Close()
	}
}

// run consumes one process's output until it exits
func (c *Controller) run(sess *Session, proc Process) {
	for line := range proc.Lines() {
		c.handleLine(sess, line)
	}
	<-proc.Done()

	var cause error
	if exitErr := proc.ExitErr(); exitErr != nil {
		cause = &LaunchError{Message: "capture process exited before ready", Cause: exitErr}
	} else {
		cause = &LaunchError{Message: "capture process exited before ready", Cause: ErrSessionClosed}
	}
	if c.terminate(sess, InputExit, cause) {
		log.Info().Str("session", sess.ID.String()).Msg("capture session ended by process exit")
	}
	proc.Close()
}

func (c *Controller) handleLine(sess *Session, line string) {
	status := protocol.ParseLine(line)
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(status)
	}

	switch status.Family() {
	case protocol.FamilyLifecycle:
		c.handleLifecycle(sess, status)
	case protocol.FamilyNavigate, protocol.FamilyCapture:
		c.handleReply(sess, status)
	case protocol.FamilyProgress:
		log.Debug().Str("session", sess.ID.String()).Str("status", string(status.Kind)).Msg("capture progress")
	default:
		log.Debug().Str("session", sess.ID.String()).Str("line", status.Raw).Msg("capture process diagnostic")
	}
}

func (c *Controller) handleLifecycle(sess *Session, status protocol.Status) {
	switch status.Kind {
	case protocol.BrowserReady:
		c.mu.Lock()
		if c.session != sess {
			c.mu.Unlock()
			return
		}
		next, ok := Transition(c.state, InputReady)
		if ok {
			c.state = next
		}
		c.mu.Unlock()

		if ok {
			log.Info().Str("session", sess.ID.String()).Msg("capture session ready")
			sess.signalReady(nil)
			c.emitState(sess, next)
		}

	case protocol.FatalError:
		log.Error().Str("session", sess.ID.String()).Str("message", status.Payload).Msg("capture process reported a fatal error")
		if c.terminate(sess, InputLaunchFailed, &LaunchError{Message: status.Payload}) {
			go sess.proc.Close()
		}

	case protocol.BrowserClosed:
		log.Info().Str("session", sess.ID.String()).Msg("capture surface closed by user")
		c.terminate(sess, InputExit, &LaunchError{Message: "browser closed before ready", Cause: ErrSessionClosed})
	}
}

// discardCapture removes the file behind a CAPTURE_SUCCESS nobody waits for
func discardCapture(status protocol.Status) {
	if status.Kind != protocol.CaptureSuccess {
		return
	}
	path := strings.TrimSpace(status.Payload)
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove abandoned capture")
	}
}

// handleReply routes a terminal status line to the pending command of its
// family. Replies owed to abandoned commands are dropped first.
func (c *Controller) handleReply(sess *Session, status protocol.Status) {
	family := status.Family()

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}

	if c.stale[family] > 0 {
		c.stale[family]--
		c.mu.Unlock()
		log.Debug().Str("session", sess.ID.String()).Str("status", string(status.Kind)).Msg("discarding late reply")
		discardCapture(status)
		return
	}

	req := c.pending
	if req == nil || req.family != family {
		c.mu.Unlock()
		if status.Kind == protocol.NavError {
			c.warn(sess, "navigation failed: "+status.Payload)
			return
		}
		log.Debug().Str("session", sess.ID.String()).Str("status", string(status.Kind)).Msg("unsolicited reply")
		discardCapture(status)
		return
	}

	c.pending = nil
	state, changed := c.state, false
	if family == protocol.FamilyCapture {
		state, changed = Transition(c.state, InputCaptureDone)
		c.state = state
	}
	c.mu.Unlock()

	req.resolve(reply{status: status})
	if changed {
		c.emitState(sess, state)
	}
}

func (c *Controller) warn(sess *Session, message string) {
	c.mu.Lock()
	if c.session == sess {
		c.warning = message
	}
	c.mu.Unlock()

	log.Warn().Str("session", sess.ID.String()).Msg(message)
	c.emit(Event{Type: EventWarning, SessionID: sess.ID.String(), Message: message})
}

// terminate closes sess if it is still current. Any pending command resolves
// with ErrSessionClosed; a launch still waiting receives launchCause.
func (c *Controller) terminate(sess *Session, in Input, launchCause error) bool {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return false
	}
	next, ok := Transition(c.state, in)
	if !ok {
		next = Closed
	}
	c.state = next
	c.session = nil
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		pending.resolve(reply{err: ErrSessionClosed})
	}
	sess.signalReady(launchCause)
	c.emitState(sess, next)
	return true
}

// begin reserves the single command slot
func (c *Controller) begin(op string, family protocol.Family) (*Session, *request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil || c.state == Capturing {
		return nil, nil, ErrBusy
	}

	if family == protocol.FamilyCapture {
		next, ok := Transition(c.state, InputCapture)
		if !ok {
			return nil, nil, &StateError{Op: op, State: c.state}
		}
		c.state = next
	} else if c.state != Ready {
		return nil, nil, &StateError{Op: op, State: c.state}
	}

	req := &request{family: family, reply: make(chan reply, 1)}
	c.pending = req
	return c.session, req, nil
}

// await waits for req's reply, abandoning it on timeout or cancellation
func (c *Controller) await(ctx context.Context, sess *Session, req *request, timeout time.Duration) (protocol.Status, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rep := <-req.reply:
		return rep.status, rep.err
	case <-timer.C:
		return c.abandon(sess, req, true, ErrProtocolTimeout)
	case <-ctx.Done():
		return c.abandon(sess, req, true, ctx.Err())
	}
}

// abandon gives up on req. When sent is true the process still owes a
// reply, which is discarded once it arrives.
func (c *Controller) abandon(sess *Session, req *request, sent bool, cause error) (protocol.Status, error) {
	c.mu.Lock()
	if c.pending != req {
		// Resolved concurrently; the reply is already buffered
		c.mu.Unlock()
		rep := <-req.reply
		return rep.status, rep.err
	}
	c.pending = nil
	if sent {
		c.stale[req.family]++
	}
	state, changed := c.state, false
	if req.family == protocol.FamilyCapture {
		state, changed = Transition(c.state, InputCaptureDone)
		c.state = state
	}
	c.mu.Unlock()

	if changed {
		c.emitState(sess, state)
	}
	return protocol.Status{}, cause
}

// Capture takes a full-page screenshot with the current viewport
func (c *Controller) Capture(ctx context.Context) (gallery.Entry, error) {
	return c.capture(ctx, protocol.CmdCapture, c.opts.CaptureTimeout)
}

// CaptureMobile switches the page to protocol.MobileViewport and captures.
// The viewport is left in place afterwards.
func (c *Controller) CaptureMobile(ctx context.Context) (gallery.Entry, error) {
	return c.capture(ctx, protocol.CmdCaptureMobile, c.opts.CaptureTimeout+protocol.MobileViewport.Settle)
}

func (c *Controller) capture(ctx context.Context, cmd protocol.Command, timeout time.Duration) (gallery.Entry, error) {
	op := "capture"
	if cmd == protocol.CmdCaptureMobile {
		op = "capture mobile"
	}

	sess, req, err := c.begin(op, protocol.FamilyCapture)
	if err != nil {
		return gallery.Entry{}, err
	}

	if err := sess.proc.Send(string(cmd)); err != nil {
		c.abandon(sess, req, false, err)
		return gallery.Entry{}, &CaptureError{Message: "could not send command", Cause: err}
	}

	status, err := c.await(ctx, sess, req, timeout)
	if err != nil {
		return gallery.Entry{}, fmt.Errorf("%s: %w", op, err)
	}
	if status.Kind == protocol.CaptureError {
		log.Warn().Str("session", sess.ID.String()).Str("message", status.Payload).Msg("capture failed")
		return gallery.Entry{}, &CaptureError{Message: status.Payload}
	}

	// The file exists now; do not lose it to a cancelled caller
	entry, err := c.opts.Ingester.AppendFile(context.WithoutCancel(ctx), status.Payload, c.sourceLabel(sess))
	if err != nil {
		return gallery.Entry{}, &CaptureError{Message: "could not store screenshot", Cause: err}
	}

	c.emit(Event{Type: EventCaptured, SessionID: sess.ID.String(), State: Ready, Entry: &entry})
	return entry, nil
}

// sourceLabel is the session URL, or the session id on a blank surface
func (c *Controller) sourceLabel(sess *Session) string {
	c.mu.Lock()
	url := sess.URL
	c.mu.Unlock()

	if url == "" || url == protocol.BlankPage {
		return "Session " + sess.ID.String()[:8]
	}
	return url
}

// Navigate points the session at rawURL. A failure leaves the session ready.
func (c *Controller) Navigate(ctx context.Context, rawURL string) error {
	url := protocol.NormalizeURL(rawURL)

	sess, req, err := c.begin("navigate", protocol.FamilyNavigate)
	if err != nil {
		return err
	}

	if err := sess.proc.Send(string(protocol.Goto(url))); err != nil {
		c.abandon(sess, req, false, err)
		return &NavigationError{URL: url, Message: err.Error()}
	}

	status, err := c.await(ctx, sess, req, c.opts.NavigateTimeout)
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if status.Kind == protocol.NavError {
		log.Warn().Str("session", sess.ID.String()).Str("url", url).Str("message", status.Payload).Msg("navigation failed")
		return &NavigationError{URL: url, Message: status.Payload}
	}

	c.mu.Lock()
	sess.URL = url
	if c.session == sess {
		c.warning = ""
	}
	state := c.state
	c.mu.Unlock()

	log.Info().Str("session", sess.ID.String()).Str("url", url).Msg("navigated")
	c.emitState(sess, state)
	return nil
}

// Stop ends the current session. It is valid in every state except Closed
// and returns once the process is gone.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	next, ok := Transition(c.state, InputStop)
	if !ok {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "stop", State: state}
	}
	sess := c.session
	c.state = next
	c.session = nil
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		pending.resolve(reply{err: ErrSessionClosed})
	}
	c.emitState(sess, next)

	if sess == nil {
		return nil
	}
	sess.signalReady(&LaunchError{Message: "session stopped", Cause: ErrSessionClosed})
	log.Info().Str("session", sess.ID.String()).Msg("stopping capture session")

	if sess.proc == nil {
		// Still spawning; StartSession closes the process when it sees the session is gone
		return nil
	}
	if err := sess.proc.Send(string(protocol.CmdExit)); err != nil {
		log.Debug().Err(err).Str("session", sess.ID.String()).Msg("could not send EXIT")
	}

	closed := make(chan error, 1)
	go func() { closed <- sess.proc.Close() }()
	select {
	case err := <-closed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops a live session, if any
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	live := c.state.Live()
	c.mu.Unlock()
	if !live {
		return nil
	}
	return c.Stop(ctx)
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:   c.state,
		Warning: c.warning,
		Busy:    c.pending != nil || c.state == Capturing,
	}
	if sess := c.session; sess != nil {
		snap.SessionID = sess.ID.String()
		snap.URL = sess.URL
		snap.StartedAt = sess.StartedAt
		if sess.proc != nil {
			snap.PID = sess.proc.PID()
		}
	}
	return snap
}
