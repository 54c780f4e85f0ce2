package core

import "errors"

// Code is a stable error class. It is a string newtype, comparable and
// implements error, so errors.Is(err, ConfigurationError) works on any
// error produced by this package.
type Code string

func (c Code) Error() string { return string(c) }

const (
	// ConfigurationError covers missing pins, invalid run bounds and
	// timing inputs that produce no usable pulse delay.
	ConfigurationError Code = "configuration_error"
	// UsageError covers calls that are valid on their own but not in the
	// driver's current state, or mix sync and async flavors.
	UsageError Code = "usage_error"
	// OK is returned by CodeOf for a nil error.
	OK Code = "ok"
	// Unknown is returned by CodeOf for errors from outside this package.
	Unknown Code = "error"
)

var (
	ErrPinMissing       = errors.New("pin not configured")
	ErrInvalidTiming    = errors.New("invalid timing")
	ErrInvalidBound     = errors.New("run needs exactly one of pulse count or predicate")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrUnknownMode      = errors.New("unknown stepping mode")
	ErrNoTimer          = errors.New("no periodic timer configured")
	ErrRunActive        = errors.New("a run is already active on this driver")
	ErrPredicateFlavor  = errors.New("predicate flavor does not match run strategy")
	ErrTimerArmed       = errors.New("timer already armed")
)

// Error carries a Code, the operation that failed and the cause.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Code)
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's Code as well as its cause.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

func configErr(op string, err error, msg string) error {
	return &Error{Code: ConfigurationError, Op: op, Msg: msg, Err: err}
}

func usageErr(op string, err error, msg string) error {
	return &Error{Code: UsageError, Op: op, Msg: msg, Err: err}
}

// CodeOf extracts the Code from an error.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unknown
}
