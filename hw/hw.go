// Package hw defines the hardware-abstraction interfaces the firmware core
// depends on. The core never touches raw registers or addresses; platform
// code (platform/) supplies implementations for each target, and tests supply
// fakes.
package hw

// Pull selects the input pull resistor for a GPIO line.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIOPin is one discrete digital line addressed by logical role, not by a
// register. Set/Get are assumed infallible: a configured GPIO write cannot
// fail on any supported target.
type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Number() int
}

// RowMemory is non-volatile memory organised in erasable rows, the way
// high-endurance flash presents itself. WriteRow requires the row to be in
// the erased state; an erased row reads back as 0xFF in every byte.
type RowMemory interface {
	Rows() int
	RowSize() int
	ReadRow(row int, buf []byte) error
	WriteRow(row int, data []byte) error
	EraseRow(row int) error
}

// FrameLink is the boundary to the external host transport. It delivers
// exactly one complete command buffer per ReadFrame and accepts exactly one
// reply buffer per WriteFrame; framing, enumeration and interrupt servicing
// live behind it.
type FrameLink interface {
	// ReadFrame blocks until a full command frame arrives, copies it into
	// buf and returns its length.
	ReadFrame(buf []byte) (int, error)
	WriteFrame(frame []byte) error
}
