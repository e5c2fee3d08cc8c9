package errcode

// Code is a stable error identifier for faults surfaced outside the command
// protocol. It is a string newtype, comparable, allocation-free, and
// implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Calibration store.
	UnknownSlot   Code = "unknown_slot"
	RecordSize    Code = "bad_record_size"
	RowOutOfRange Code = "row_out_of_range"
	RowNotErased  Code = "row_not_erased"
	RowTooSmall   Code = "row_too_small"
	TooFewRows    Code = "too_few_rows"
	MemoryFailed  Code = "memory_failed"

	// Host transport.
	LinkClosed    Code = "link_closed"
	FrameTooLarge Code = "frame_too_large"
	ShortFrame    Code = "short_frame"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
