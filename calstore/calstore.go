// Package calstore persists the instrument's calibration records in
// erasable-row non-volatile memory with wear leveling.
//
// Three fixed slots each hold one 6-byte record. The record bytes are opaque:
// the store never interprets or validates their content. Each slot owns an
// equal share of the memory's rows and writes march round-robin through that
// pool, so no single row absorbs every erase cycle. A record is committed as
// a framed row (marker, sequence number, payload, CRC); the previous row is
// only reclaimed when the ring wraps back onto it, so a power loss mid-write
// leaves the prior record intact and the torn frame fails its CRC on the
// next mount.
package calstore

import (
	"encoding/binary"

	"github.com/snksoft/crc"

	"potentiostat-go/errcode"
	"potentiostat-go/hw"
)

// Slot identifies one logical calibration record.
type Slot uint8

const (
	SlotOffset Slot = iota
	SlotDACCal
	SlotShuntCal
	NumSlots
)

func (s Slot) String() string {
	switch s {
	case SlotOffset:
		return "offset"
	case SlotDACCal:
		return "dac_cal"
	case SlotShuntCal:
		return "shunt_cal"
	default:
		return "unknown"
	}
}

// RecordLen is the exact size of every calibration record.
const RecordLen = 6

// Row frame: marker, big-endian sequence number, payload, big-endian CRC16
// (XMODEM) over everything before it. An erased row (all 0xFF) fails both
// the marker and the CRC check.
const (
	frameMarker = 0xA5
	frameLen    = 1 + 4 + RecordLen + 2

	offSeq     = 1
	offPayload = 5
	offCRC     = 5 + RecordLen
)

var crcTable = crc.NewTable(crc.XMODEM)

// Store is the mounted calibration store. It is not safe for concurrent use;
// the firmware's single command actor is the only writer by construction.
type Store struct {
	mem  hw.RowMemory
	pool int // rows per slot

	cur [NumSlots]int // ring position of the live row, valid when has[i]
	seq [NumSlots]uint32
	rec [NumSlots][RecordLen]byte
	has [NumSlots]bool

	buf []byte // one-row scratch
}

// Mount scans memory and recovers, per slot, the newest validly committed
// record. Torn or erased rows are skipped.
func Mount(mem hw.RowMemory) (*Store, error) {
	if mem.RowSize() < frameLen {
		return nil, &errcode.E{C: errcode.RowTooSmall, Op: "calstore.Mount"}
	}
	pool := mem.Rows() / int(NumSlots)
	if pool < 2 {
		// Leveling and write atomicity both need a spare row per slot.
		return nil, &errcode.E{C: errcode.TooFewRows, Op: "calstore.Mount"}
	}
	s := &Store{
		mem:  mem,
		pool: pool,
		buf:  make([]byte, mem.RowSize()),
	}
	for slot := Slot(0); slot < NumSlots; slot++ {
		base := int(slot) * pool
		for i := 0; i < pool; i++ {
			if err := mem.ReadRow(base+i, s.buf); err != nil {
				return nil, &errcode.E{C: errcode.MemoryFailed, Op: "calstore.Mount", Err: err}
			}
			seq, rec, ok := parseFrame(s.buf)
			if !ok {
				continue
			}
			if !s.has[slot] || seq > s.seq[slot] {
				s.has[slot] = true
				s.seq[slot] = seq
				s.rec[slot] = rec
				s.cur[slot] = i
			}
		}
	}
	return s, nil
}

// Read returns the most recently written record for the slot. A slot that
// has never been written reads back as erased memory (0xFF in every byte).
func (s *Store) Read(slot Slot) ([RecordLen]byte, error) {
	var rec [RecordLen]byte
	if slot >= NumSlots {
		return rec, errcode.UnknownSlot
	}
	if !s.has[slot] {
		for i := range rec {
			rec[i] = 0xFF
		}
		return rec, nil
	}
	return s.rec[slot], nil
}

// Write commits a record to the slot's next ring row. The previously live
// row is left untouched until the ring wraps onto it, so a failure part-way
// through never costs the old record.
func (s *Store) Write(slot Slot, rec []byte) error {
	if slot >= NumSlots {
		return errcode.UnknownSlot
	}
	if len(rec) != RecordLen {
		return errcode.RecordSize
	}

	next := 0
	if s.has[slot] {
		next = (s.cur[slot] + 1) % s.pool
	}
	row := int(slot)*s.pool + next

	// Reclaim the stale row about to be rewritten.
	if err := s.mem.ReadRow(row, s.buf); err != nil {
		return &errcode.E{C: errcode.MemoryFailed, Op: "calstore.Write", Err: err}
	}
	if !erased(s.buf) {
		if err := s.mem.EraseRow(row); err != nil {
			return &errcode.E{C: errcode.MemoryFailed, Op: "calstore.Write", Err: err}
		}
	}

	frame := make([]byte, frameLen)
	frame[0] = frameMarker
	binary.BigEndian.PutUint32(frame[offSeq:], s.seq[slot]+1)
	copy(frame[offPayload:], rec)
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, frame[:offCRC])
	binary.BigEndian.PutUint16(frame[offCRC:], crcTable.CRC16(c))

	if err := s.mem.WriteRow(row, frame); err != nil {
		return &errcode.E{C: errcode.MemoryFailed, Op: "calstore.Write", Err: err}
	}

	s.has[slot] = true
	s.seq[slot]++
	s.cur[slot] = next
	copy(s.rec[slot][:], rec)
	return nil
}

func parseFrame(row []byte) (seq uint32, rec [RecordLen]byte, ok bool) {
	if row[0] != frameMarker {
		return 0, rec, false
	}
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, row[:offCRC])
	if binary.BigEndian.Uint16(row[offCRC:offCRC+2]) != crcTable.CRC16(c) {
		return 0, rec, false
	}
	seq = binary.BigEndian.Uint32(row[offSeq:])
	copy(rec[:], row[offPayload:offPayload+RecordLen])
	return seq, rec, true
}

func erased(row []byte) bool {
	for _, b := range row {
		if b != 0xFF {
			return false
		}
	}
	return true
}
