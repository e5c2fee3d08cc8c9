// Package protocol implements the host command interpreter: a fixed table of
// recognised ASCII tokens, each optionally followed by a fixed-length raw
// payload. Matching is exact on (token, total length); there is no
// tokenizing, whitespace splitting or case folding. Unmatched buffers yield
// the literal "?" reply.
package protocol

// Textual replies. Data-bearing commands reply with raw bytes instead.
var (
	ReplyOK      = []byte("OK")
	ReplyUnknown = []byte("?")
	ReplyWait    = []byte("WAIT")
)

// MaxFrame bounds command and reply buffers. The longest recognised command
// is "SHUNTCALSAVE " plus a 6-byte record; USB bulk buffers on the original
// hardware are 64 bytes, so frames are clamped there.
const MaxFrame = 64

// Action executes one command. Payload is the raw bytes following the token
// (empty for payload-less commands); the returned slice is the complete
// reply.
type Action func(payload []byte) []byte

type entry struct {
	token    string
	totalLen int
	action   Action
}

// Dispatcher is a branch table from (token, total length) to an action.
// The zero value is usable; unmatched input dispatches to the unknown-command
// reply.
type Dispatcher struct {
	entries []entry
}

// Handle registers a command. Token is the literal prefix including any
// trailing separator (e.g. "DACSET "); payloadLen is the exact number of raw
// bytes that must follow it.
func (d *Dispatcher) Handle(token string, payloadLen int, a Action) {
	d.entries = append(d.entries, entry{
		token:    token,
		totalLen: len(token) + payloadLen,
		action:   a,
	})
}

// Dispatch identifies at most one command in buf and runs its action,
// returning the reply. Every invocation invokes exactly one action: a table
// entry on an exact match, otherwise the unknown-command reply.
func (d *Dispatcher) Dispatch(buf []byte) []byte {
	for i := range d.entries {
		e := &d.entries[i]
		if len(buf) != e.totalLen {
			continue
		}
		if string(buf[:len(e.token)]) != e.token {
			continue
		}
		return e.action(buf[len(e.token):])
	}
	return ReplyUnknown
}
