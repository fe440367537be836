// Package region keeps the current value of a fixed-size record in a range
// of flash sectors, surviving resets and power loss.
//
// Each update goes to the next slot of the current sector; when a sector
// fills up, the next sector (wrapping at the end of the region) is erased and
// stamped with a higher serial. A slot counts only once its bit in the
// sector's commit bitmap is cleared, which is the last step of an update.
//
// A Region does no locking; callers serialize access to it.
package region

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-flashlog/common"
	"github.com/mit-pdos/go-flashlog/util"
)

// Device is the raw flash the region lives on.
type Device interface {
	Begin() error
	SizeInSectors() uint64
	ReadBytes(a uint64, b []byte) (uint64, error)
	// WriteBytes is only guaranteed to program within one page.
	WriteBytes(a uint64, b []byte) (uint64, error)
	EraseSector(sector common.Snum) error
}

// State is the cursor: the most recently committed slot.
// Serial == common.NotFoundSerial means the region holds no record.
type State struct {
	Serial common.Serial
	Sector common.Snum
	Slot   uint64
}

func (st State) empty() bool {
	return st.Serial == common.NotFoundSerial
}

type Region struct {
	dev    Device
	start  common.Snum
	end    common.Snum
	layout Layout
	magic  uint32
	st     State
}

type header struct {
	magic  uint32
	serial common.Serial
}

func encodeHeader(h header) []byte {
	enc := marshal.NewEnc(common.HeaderSize)
	enc.PutInt32(h.magic)
	enc.PutInt32(h.serial)
	return enc.Finish()
}

func decodeHeader(b []byte) header {
	dec := marshal.NewDec(b)
	magic := dec.GetInt32()
	serial := dec.GetInt32()
	return header{magic: magic, serial: serial}
}

func (r *Region) State() State {
	return r.st
}

func (r *Region) Layout() Layout {
	return r.layout
}

func (r *Region) Fingerprint() uint32 {
	return r.magic
}

// ReadCurrent returns the current record. ok is false if the region has never
// been written.
func (r *Region) ReadCurrent() (rec []byte, ok bool, err error) {
	if r.st.empty() {
		return nil, false, nil
	}
	a := r.layout.DataAddr(r.st.Sector, r.st.Slot)
	rec = make([]byte, r.layout.RecordLen)
	n, err := r.dev.ReadBytes(a, rec)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read record at %d: %v", ErrIO, a, err)
	}
	if n != r.layout.RecordLen {
		return nil, false, fmt.Errorf("%w: short read of record at %d", ErrIO, a)
	}
	return rec, true, nil
}

func (r *Region) next() State {
	if r.st.empty() {
		return State{Serial: common.FirstSerial, Sector: r.start, Slot: 0}
	}
	nxt := r.st
	nxt.Slot++
	if nxt.Slot >= r.layout.EntriesPerSector {
		return r.rollover(r.st)
	}
	return nxt
}

func (r *Region) rollover(st State) State {
	nxt := State{Serial: st.Serial + 1, Sector: st.Sector + 1, Slot: 0}
	if nxt.Sector >= r.end {
		nxt.Sector = r.start // wrap
	}
	return nxt
}

// slotErased reports whether st's slot can still be programmed. A slot whose
// data write was cut short holds programmed but uncommitted bytes.
func (r *Region) slotErased(st State) (bool, error) {
	a := r.layout.DataAddr(st.Sector, st.Slot)
	b := make([]byte, r.layout.RecordLen)
	n, err := r.dev.ReadBytes(a, b)
	if err != nil {
		return false, fmt.Errorf("%w: read slot at %d: %v", ErrIO, a, err)
	}
	if n != r.layout.RecordLen {
		return false, fmt.Errorf("%w: short slot read at %d", ErrIO, a)
	}
	for _, x := range b {
		if x != common.ErasedByte {
			return false, nil
		}
	}
	return true, nil
}

func (r *Region) write(a uint64, b []byte, what string) error {
	n, err := writeAligned(r.dev, a, b)
	if err != nil {
		return fmt.Errorf("%w: %s write at %d: %v", ErrIO, what, a, err)
	}
	if n != uint64(len(b)) {
		return fmt.Errorf("%w: short %s write at %d", ErrIO, what, a)
	}
	return nil
}

// WriteNext makes rec the current record. rec must be exactly the region's
// record length. On failure the previous record stays current.
func (r *Region) WriteNext(rec []byte) error {
	if uint64(len(rec)) != r.layout.RecordLen {
		return fmt.Errorf("%w: record is %d bytes, region holds %d",
			ErrGeometry, len(rec), r.layout.RecordLen)
	}
	nxt := r.next()
	if nxt.Slot != 0 {
		ok, err := r.slotErased(nxt)
		if err != nil {
			return err
		}
		if !ok {
			util.DPrintf(1, "sector %d slot %d is dirty, moving on\n", nxt.Sector, nxt.Slot)
			nxt = r.rollover(r.st)
		}
	}

	if nxt.Slot == 0 {
		if err := r.dev.EraseSector(nxt.Sector); err != nil {
			return fmt.Errorf("%w: erase sector %d: %v", ErrIO, nxt.Sector, err)
		}
		hdr := encodeHeader(header{magic: r.magic, serial: nxt.Serial})
		if err := r.write(r.layout.HeaderAddr(nxt.Sector), hdr, "header"); err != nil {
			return err
		}
	}

	if err := r.write(r.layout.DataAddr(nxt.Sector, nxt.Slot), rec, "data"); err != nil {
		return err
	}

	bit := []byte{commitPattern(nxt.Slot)}
	if err := r.write(r.layout.BitmapAddr(nxt.Sector)+nxt.Slot/8, bit, "bitmap"); err != nil {
		return err
	}

	r.st = nxt
	util.DPrintf(5, "region %d: wrote serial %d sector %d slot %d\n",
		r.start, nxt.Serial, nxt.Sector, nxt.Slot)
	return nil
}
