package calstore

import (
	"errors"
	"fmt"
	"testing"

	"potentiostat-go/errcode"
)

// fakeRowMemory emulates erase-before-write flash rows and counts erases so
// leveling behaviour is observable. failAfter, when >= 0, makes the next
// WriteRow store only that many bytes and then fail, like a power loss.
type fakeRowMemory struct {
	rows      [][]byte
	rowSize   int
	erases    []int
	failAfter int
}

func newFakeRowMemory(rows, rowSize int) *fakeRowMemory {
	m := &fakeRowMemory{
		rows:      make([][]byte, rows),
		rowSize:   rowSize,
		erases:    make([]int, rows),
		failAfter: -1,
	}
	for i := range m.rows {
		m.rows[i] = make([]byte, rowSize)
		for j := range m.rows[i] {
			m.rows[i][j] = 0xFF
		}
	}
	return m
}

func (m *fakeRowMemory) Rows() int    { return len(m.rows) }
func (m *fakeRowMemory) RowSize() int { return m.rowSize }

func (m *fakeRowMemory) ReadRow(row int, buf []byte) error {
	copy(buf, m.rows[row])
	return nil
}

func (m *fakeRowMemory) WriteRow(row int, data []byte) error {
	for _, b := range m.rows[row][:len(data)] {
		if b != 0xFF {
			return errcode.RowNotErased
		}
	}
	if m.failAfter >= 0 {
		copy(m.rows[row], data[:m.failAfter])
		m.failAfter = -1
		return errors.New("power lost")
	}
	copy(m.rows[row], data)
	return nil
}

func (m *fakeRowMemory) EraseRow(row int) error {
	for i := range m.rows[row] {
		m.rows[row][i] = 0xFF
	}
	m.erases[row]++
	return nil
}

func mustMount(t *testing.T, m *fakeRowMemory) *Store {
	t.Helper()
	s, err := Mount(m)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return s
}

func record(fill byte) []byte {
	return []byte{fill, fill + 1, fill + 2, fill + 3, fill + 4, fill + 5}
}

func TestUnwrittenSlotReadsErased(t *testing.T) {
	s := mustMount(t, newFakeRowMemory(12, 16))
	for slot := Slot(0); slot < NumSlots; slot++ {
		rec, err := s.Read(slot)
		if err != nil {
			t.Fatalf("Read(%v): %v", slot, err)
		}
		for i, b := range rec {
			if b != 0xFF {
				t.Fatalf("Read(%v)[%d] = %#x, want 0xFF", slot, i, b)
			}
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := mustMount(t, newFakeRowMemory(12, 16))
	for slot := Slot(0); slot < NumSlots; slot++ {
		want := record(byte(0x10 * (slot + 1)))
		if err := s.Write(slot, want); err != nil {
			t.Fatalf("Write(%v): %v", slot, err)
		}
		got, err := s.Read(slot)
		if err != nil {
			t.Fatalf("Read(%v): %v", slot, err)
		}
		if string(got[:]) != string(want) {
			t.Fatalf("Read(%v) = % x, want % x", slot, got, want)
		}
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	s := mustMount(t, newFakeRowMemory(12, 16))
	if err := s.Write(SlotOffset, record(0x10)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(SlotDACCal, record(0x20)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Write(SlotShuntCal, record(byte(0x30+i))); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.Read(SlotOffset)
	if got[0] != 0x10 {
		t.Fatalf("offset slot clobbered: % x", got)
	}
	got, _ = s.Read(SlotDACCal)
	if got[0] != 0x20 {
		t.Fatalf("dac cal slot clobbered: % x", got)
	}
	got, _ = s.Read(SlotShuntCal)
	if got[0] != 0x34 {
		t.Fatalf("shunt cal slot stale: % x", got)
	}
}

func TestRemountRecoversNewest(t *testing.T) {
	mem := newFakeRowMemory(12, 16)
	s := mustMount(t, mem)
	for i := 0; i < 7; i++ {
		if err := s.Write(SlotDACCal, record(byte(i))); err != nil {
			t.Fatal(err)
		}
	}

	s2 := mustMount(t, mem)
	got, err := s2.Read(SlotDACCal)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 6 {
		t.Fatalf("remount recovered % x, want newest record", got)
	}
	rec, _ := s2.Read(SlotOffset)
	if rec[0] != 0xFF {
		t.Fatalf("untouched slot non-erased after remount: % x", rec)
	}
}

func TestWritesLevelAcrossRowPool(t *testing.T) {
	mem := newFakeRowMemory(12, 16) // 4 rows per slot
	s := mustMount(t, mem)
	const writes = 40
	for i := 0; i < writes; i++ {
		if err := s.Write(SlotOffset, record(byte(i))); err != nil {
			t.Fatal(err)
		}
	}
	pool := mem.Rows() / int(NumSlots)
	for row := 0; row < pool; row++ {
		n := mem.erases[row]
		if n == 0 {
			t.Fatalf("row %d never erased; leveling not spreading writes", row)
		}
		if n > writes/pool+1 {
			t.Fatalf("row %d erased %d times for %d writes over %d rows", row, n, writes, pool)
		}
	}
	for row := pool; row < mem.Rows(); row++ {
		if mem.erases[row] != 0 {
			t.Fatalf("row %d outside the slot's band was erased", row)
		}
	}
}

func TestPowerLossKeepsPreviousRecord(t *testing.T) {
	for cut := 0; cut < frameLen; cut++ {
		t.Run(fmt.Sprintf("cut=%d", cut), func(t *testing.T) {
			mem := newFakeRowMemory(12, 16)
			s := mustMount(t, mem)
			if err := s.Write(SlotShuntCal, record(0x40)); err != nil {
				t.Fatal(err)
			}

			mem.failAfter = cut
			if err := s.Write(SlotShuntCal, record(0x50)); errcode.Of(err) != errcode.MemoryFailed {
				t.Fatalf("Write during power loss: %v", err)
			}

			s2 := mustMount(t, mem)
			got, err := s2.Read(SlotShuntCal)
			if err != nil {
				t.Fatal(err)
			}
			// Either record is acceptable, a torn mix is not. The new
			// record can only surface once its payload bytes were all
			// written before the cut.
			switch {
			case string(got[:]) == string(record(0x40)):
			case string(got[:]) == string(record(0x50)):
				if cut < offPayload+RecordLen {
					t.Fatalf("recovered new record from incomplete payload (cut=%d)", cut)
				}
			default:
				t.Fatalf("after torn write recovered % x", got)
			}
		})
	}
}

func TestWriteValidation(t *testing.T) {
	s := mustMount(t, newFakeRowMemory(12, 16))
	if err := s.Write(NumSlots, record(0)); errcode.Of(err) != errcode.UnknownSlot {
		t.Fatalf("Write(bad slot): %v", err)
	}
	if err := s.Write(SlotOffset, []byte{1, 2, 3}); errcode.Of(err) != errcode.RecordSize {
		t.Fatalf("Write(short record): %v", err)
	}
	if _, err := s.Read(NumSlots); errcode.Of(err) != errcode.UnknownSlot {
		t.Fatalf("Read(bad slot): %v", err)
	}
}

func TestMountRejectsUnusableMemory(t *testing.T) {
	if _, err := Mount(newFakeRowMemory(12, frameLen-1)); errcode.Of(err) != errcode.RowTooSmall {
		t.Fatalf("Mount(narrow rows): %v", err)
	}
	if _, err := Mount(newFakeRowMemory(3, 16)); errcode.Of(err) != errcode.TooFewRows {
		t.Fatalf("Mount(too few rows): %v", err)
	}
}
