package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

// Process is a running capture process. Lines delivers status lines in the
// order they were written and is closed once output ends.
type Process interface {
	Lines() <-chan string
	Send(line string) error
	Done() <-chan struct{}
	ExitErr() error
	PID() int
	Close() error
}

// Launcher starts a capture process that will open url
type Launcher func(ctx context.Context, url string) (Process, error)

const (
	maxLineSize = 1024 * 1024

	// exitGrace is how long Close waits after EOF on stdin before signalling
	exitGrace = 3 * time.Second
	// killGrace is how long Close waits after SIGINT before SIGKILL
	killGrace = 5 * time.Second
	// drainTimeout bounds reading leftover output after exit
	drainTimeout = 2 * time.Second
)

var errProcessNotRunning = errors.New("capture process not running")

// ProcessError wraps a transport level failure
type ProcessError struct {
	Message string
	Cause   error
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capture process: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("capture process: %s", e.Message)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// SubprocessConfig describes how to run the capture process
type SubprocessConfig struct {
	// Command is the program and its leading arguments
	Command []string
	Dir     string
	Env     []string
}

// Subprocess runs the capture process as a child with piped stdio
type Subprocess struct {
	cfg SubprocessConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	lines chan string
	done  chan struct{}

	exitErr error
	mu      sync.RWMutex
	closed  bool
	writeMu sync.Mutex
	readers sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	shuttingDown atomic.Bool
}

// NewSubprocessLauncher returns a Launcher running cfg.Command with the URL
// appended as the final argument.
func NewSubprocessLauncher(cfg SubprocessConfig) Launcher {
	return func(ctx context.Context, url string) (Process, error) {
		p := &Subprocess{cfg: cfg}
		if err := p.Start(ctx, url); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Start spawns the process. ctx bounds the process lifetime.
func (p *Subprocess) Start(ctx context.Context, url string) error {
	if len(p.cfg.Command) == 0 {
		return &ProcessError{Message: "no capture command configured"}
	}

	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.lines = make(chan string, 64)
	p.done = make(chan struct{})

	args := append(append([]string{}, p.cfg.Command[1:]...), url)
	p.cmd = exec.CommandContext(p.ctx, p.cfg.Command[0], args...)
	p.cmd.Dir = p.cfg.Dir
	p.cmd.Env = append(os.Environ(), p.cfg.Env...)

	var err error
	if p.stdin, err = p.cmd.StdinPipe(); err != nil {
		return &ProcessError{Message: "failed to create stdin pipe", Cause: err}
	}

	// Own pipes rather than StdoutPipe: Wait must not close the read ends
	// before the last status line has been consumed.
	var outW, errW *os.File
	if p.stdout, outW, err = os.Pipe(); err != nil {
		return &ProcessError{Message: "failed to create stdout pipe", Cause: err}
	}
	if p.stderr, errW, err = os.Pipe(); err != nil {
		p.stdout.Close()
		outW.Close()
		return &ProcessError{Message: "failed to create stderr pipe", Cause: err}
	}
	p.cmd.Stdout = outW
	p.cmd.Stderr = errW

	startErr := p.cmd.Start()
	outW.Close()
	errW.Close()
	if startErr != nil {
		p.cancel()
		p.stdout.Close()
		p.stderr.Close()
		return &ProcessError{Message: "failed to start " + p.cfg.Command[0], Cause: startErr}
	}

	log.Info().
		Int("pid", p.cmd.Process.Pid).
		Strs("cmd", p.cfg.Command).
		Str("url", url).
		Msg("capture process started")

	p.readers.Add(2)
	go p.read(p.stdout, "stdout", true)
	go p.read(p.stderr, "stderr", false)
	go p.monitor()

	return nil
}

// read consumes one stream line by line. Only stdout carries status lines;
// stderr is logged so its ordering can never race the protocol.
func (p *Subprocess) read(r io.Reader, stream string, forward bool) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		log.Debug().Str("stream", stream).Str("line", line).Msg("capture process output")
		if !forward {
			continue
		}

		select {
		case p.lines <- line:
		case <-p.ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Debug().Err(err).Str("stream", stream).Msg("capture process stream ended with error")
	}
}

// monitor reaps the process, then lets the readers drain. A grandchild that
// inherited the pipes gets drainTimeout before the read ends are closed.
func (p *Subprocess) monitor() {
	err := p.cmd.Wait()

	drained := make(chan struct{})
	go func() {
		p.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warn().Msg("capture process output still open after exit, closing")
		p.stdout.Close()
		p.stderr.Close()
		<-drained
	}
	p.stdout.Close()
	p.stderr.Close()
	close(p.lines)

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	if p.cmd.ProcessState != nil {
		ev := log.Info()
		if err != nil && !p.shuttingDown.Load() {
			ev = log.Warn().Err(err)
		}
		ev.Int("pid", p.cmd.ProcessState.Pid()).
			Int("exitCode", p.cmd.ProcessState.ExitCode()).
			Msg("capture process exited")
	}

	close(p.done)
}

// Send writes one command line
func (p *Subprocess) Send(line string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return errProcessNotRunning
	}

	select {
	case <-p.done:
		return errProcessNotRunning
	default:
	}

	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return &ProcessError{Message: "failed to write to stdin", Cause: err}
	}
	return nil
}

func (p *Subprocess) Lines() <-chan string { return p.lines }
func (p *Subprocess) Done() <-chan struct{} { return p.done }

func (p *Subprocess) ExitErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

func (p *Subprocess) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Close ends the process. Shutdown sequence:
//  1. Close stdin (the process treats EOF like EXIT)
//  2. Wait up to exitGrace for a clean exit
//  3. Send SIGINT and wait up to killGrace
//  4. SIGKILL
func (p *Subprocess) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.shuttingDown.Store(true)

	p.writeMu.Lock()
	if p.stdin != nil {
		p.stdin.Close()
	}
	p.writeMu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	select {
	case <-p.done:
	case <-time.After(exitGrace):
		if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
			p.cmd.Process.Kill()
		}
		select {
		case <-p.done:
		case <-time.After(killGrace):
			log.Warn().Int("pid", p.cmd.Process.Pid).Msg("capture process didn't exit gracefully, sending SIGKILL")
			p.cmd.Process.Kill()
			<-p.done
		}
	}

	p.cancel()
	return nil
}
