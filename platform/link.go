package platform

import (
	"io"

	"potentiostat-go/errcode"
)

// StreamLink carries command and reply frames over a byte stream with a
// one-byte length prefix. Frames are therefore capped at 255 bytes, well
// above the longest command.
type StreamLink struct {
	rw  io.ReadWriter
	hdr [1]byte
}

func NewStreamLink(rw io.ReadWriter) *StreamLink {
	return &StreamLink{rw: rw}
}

func (l *StreamLink) ReadFrame(buf []byte) (int, error) {
	if _, err := io.ReadFull(l.rw, l.hdr[:]); err != nil {
		return 0, &errcode.E{C: errcode.LinkClosed, Op: "platform.ReadFrame", Err: err}
	}
	n := int(l.hdr[0])
	if n > len(buf) {
		return 0, &errcode.E{C: errcode.FrameTooLarge, Op: "platform.ReadFrame"}
	}
	if _, err := io.ReadFull(l.rw, buf[:n]); err != nil {
		return 0, &errcode.E{C: errcode.ShortFrame, Op: "platform.ReadFrame", Err: err}
	}
	return n, nil
}

func (l *StreamLink) WriteFrame(frame []byte) error {
	if len(frame) > 255 {
		return &errcode.E{C: errcode.FrameTooLarge, Op: "platform.WriteFrame"}
	}
	l.hdr[0] = byte(len(frame))
	if _, err := l.rw.Write(l.hdr[:]); err != nil {
		return &errcode.E{C: errcode.LinkClosed, Op: "platform.WriteFrame", Err: err}
	}
	if _, err := l.rw.Write(frame); err != nil {
		return &errcode.E{C: errcode.LinkClosed, Op: "platform.WriteFrame", Err: err}
	}
	return nil
}
