package protocol

import (
	"bytes"
	"testing"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *[]string) {
	t.Helper()
	var calls []string
	d := &Dispatcher{}
	d.Handle("CELL ON", 0, func(p []byte) []byte {
		calls = append(calls, "cell_on")
		return ReplyOK
	})
	d.Handle("CELL OFF", 0, func(p []byte) []byte {
		calls = append(calls, "cell_off")
		return ReplyOK
	})
	d.Handle("DACSET ", 3, func(p []byte) []byte {
		calls = append(calls, "dacset:"+string(p))
		return ReplyOK
	})
	d.Handle("OFFSETSAVE ", 6, func(p []byte) []byte {
		calls = append(calls, "offsetsave")
		return ReplyOK
	})
	d.Handle("ADCREAD", 0, func(p []byte) []byte {
		calls = append(calls, "adcread")
		return ReplyWait
	})
	return d, &calls
}

func TestDispatch_ExactMatch(t *testing.T) {
	d, calls := newTestDispatcher(t)

	if got := d.Dispatch([]byte("CELL ON")); !bytes.Equal(got, ReplyOK) {
		t.Fatalf("CELL ON reply = %q, want OK", got)
	}
	if got := d.Dispatch([]byte("CELL OFF")); !bytes.Equal(got, ReplyOK) {
		t.Fatalf("CELL OFF reply = %q, want OK", got)
	}
	if len(*calls) != 2 || (*calls)[0] != "cell_on" || (*calls)[1] != "cell_off" {
		t.Fatalf("unexpected action calls: %v", *calls)
	}
}

func TestDispatch_PayloadCommand(t *testing.T) {
	d, calls := newTestDispatcher(t)

	buf := append([]byte("DACSET "), 0x80, 0x00, 0x01)
	if got := d.Dispatch(buf); !bytes.Equal(got, ReplyOK) {
		t.Fatalf("DACSET reply = %q, want OK", got)
	}
	want := "dacset:" + string([]byte{0x80, 0x00, 0x01})
	if len(*calls) != 1 || (*calls)[0] != want {
		t.Fatalf("payload not passed through: %v", *calls)
	}
}

func TestDispatch_Unknown(t *testing.T) {
	d, calls := newTestDispatcher(t)

	unknown := [][]byte{
		[]byte(""),
		[]byte("CELL"),
		[]byte("cell on"),          // case matters
		[]byte("CELL ON "),         // trailing byte
		[]byte("CELL ONX"),         // length matches CELL OFF, prefix does not
		[]byte("DACSET "),          // payload missing
		append([]byte("DACSET "), 1, 2),       // payload short
		append([]byte("DACSET "), 1, 2, 3, 4), // payload long
		append([]byte("OFFSETSAVE "), 1, 2, 3, 4, 5), // record short
		[]byte("NOSUCHCOMMAND"),
	}
	for _, buf := range unknown {
		if got := d.Dispatch(buf); !bytes.Equal(got, ReplyUnknown) {
			t.Errorf("Dispatch(%q) = %q, want ?", buf, got)
		}
	}
	if len(*calls) != 0 {
		t.Fatalf("unknown buffers must not invoke table actions: %v", *calls)
	}
}

func TestDispatch_ReplyPassthrough(t *testing.T) {
	d, _ := newTestDispatcher(t)

	if got := d.Dispatch([]byte("ADCREAD")); !bytes.Equal(got, ReplyWait) {
		t.Fatalf("ADCREAD reply = %q, want WAIT", got)
	}
}
