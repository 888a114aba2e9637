package capture

// State is the session lifecycle position
type State int

const (
	Idle State = iota
	Launching
	Ready
	Capturing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case Ready:
		return "ready"
	case Capturing:
		return "capturing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Input is anything that can move the session between states
type Input int

const (
	// InputLaunch is an accepted StartSession
	InputLaunch Input = iota
	// InputReady is BROWSER_READY
	InputReady
	// InputLaunchFailed covers FATAL_ERROR, early exit and launch timeout
	InputLaunchFailed
	// InputCapture is a capture command sent to the process
	InputCapture
	// InputCaptureDone is success, failure or timeout of that command
	InputCaptureDone
	// InputStop is an explicit Stop
	InputStop
	// InputExit is process exit or BROWSER_CLOSED
	InputExit
)

func (i Input) String() string {
	switch i {
	case InputLaunch:
		return "launch"
	case InputReady:
		return "ready"
	case InputLaunchFailed:
		return "launch-failed"
	case InputCapture:
		return "capture"
	case InputCaptureDone:
		return "capture-done"
	case InputStop:
		return "stop"
	case InputExit:
		return "exit"
	default:
		return "unknown"
	}
}

var transitions = map[State]map[Input]State{
	Idle: {
		InputLaunch: Launching,
		InputStop:   Closed,
	},
	Launching: {
		InputReady:        Ready,
		InputLaunchFailed: Closed,
		InputStop:         Closed,
		InputExit:         Closed,
	},
	Ready: {
		InputCapture: Capturing,
		InputStop:    Closed,
		InputExit:    Closed,
	},
	Capturing: {
		InputCaptureDone: Ready,
		InputStop:        Closed,
		InputExit:        Closed,
	},
	Closed: {
		InputLaunch: Launching,
	},
}

// Transition returns the state after in, or (s, false) when in is not
// allowed in s. The result depends only on s and in.
func Transition(s State, in Input) (State, bool) {
	next, ok := transitions[s][in]
	if !ok {
		return s, false
	}
	return next, true
}

// Live reports whether a session occupies the controller
func (s State) Live() bool {
	return s == Launching || s == Ready || s == Capturing
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
