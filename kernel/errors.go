package kernel

// Code discriminates the kernel's fallible results, per spec.md §6's
// error table. The zero value, Ok, is never returned from a failing
// call — callers should test err == nil, not inspect Code, except
// when they specifically need to branch on the failure kind.
type Code int

const (
	Ok Code = iota
	ThreadLimitReached
	NoThreadsScheduled
	InconsistentAlive
	NoSuchThread
	CannotKillLast
	IrqOutOfRange
	HwiPriorityInvalid
	QueueFull
	PeriodicTableFull
	NoSuchQueue
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case ThreadLimitReached:
		return "ThreadLimitReached"
	case NoThreadsScheduled:
		return "NoThreadsScheduled"
	case InconsistentAlive:
		return "InconsistentAlive"
	case NoSuchThread:
		return "NoSuchThread"
	case CannotKillLast:
		return "CannotKillLast"
	case IrqOutOfRange:
		return "IrqOutOfRange"
	case HwiPriorityInvalid:
		return "HwiPriorityInvalid"
	case QueueFull:
		return "QueueFull"
	case PeriodicTableFull:
		return "PeriodicTableFull"
	case NoSuchQueue:
		return "NoSuchQueue"
	default:
		return "Unknown"
	}
}

// Error is the kernel's discriminated error type: every fallible API
// returns one of these (or nil), never a bare fmt.Errorf string, so
// callers can switch on Code without string matching. The one exception
// is FireIRQ, which returns a host signal-delivery failure as the
// underlying OS error.
type Error struct {
	Code Code
	msg  string
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Code.String() + ": " + e.msg
}
