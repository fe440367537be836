// Package flash emulates a NOR flash part on top of a block disk.
//
// Each disk block holds one erase sector. Reads are byte-addressable and may
// span sectors. A program (write) covers at most one page and can only clear
// bits: the new bytes are ANDed into what the sector already holds. Erasing
// a sector sets every byte back to 0xff.
//
// The emulator can simulate power loss: after FailAfter(n), n more program or
// erase operations succeed and every later one fails until Restore.
package flash

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-flashlog/addr"
	"github.com/mit-pdos/go-flashlog/common"
	"github.com/mit-pdos/go-flashlog/disk"
	"github.com/mit-pdos/go-flashlog/util"
)

var (
	ErrNoMedia    = errors.New("flash has no sectors")
	ErrNotBegun   = errors.New("flash not begun")
	ErrOutOfRange = errors.New("address beyond flash capacity")
	ErrPowerLoss  = errors.New("power lost")
)

type Flash struct {
	d        disk.Disk
	nsectors uint64
	begun    bool

	failing   bool
	opsBudget uint64

	erases   []uint64
	programs uint64
}

func MkFlash(d disk.Disk) *Flash {
	return &Flash{d: d}
}

// Begin probes the backing disk. Calling it again is harmless.
func (f *Flash) Begin() error {
	if f.begun {
		return nil
	}
	n, err := f.d.Size()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoMedia
	}
	f.nsectors = n
	f.erases = make([]uint64, n)
	f.begun = true
	util.DPrintf(1, "flash length in sectors: %d\n", n)
	return nil
}

func (f *Flash) SizeInSectors() uint64 {
	return f.nsectors
}

// Format erases every sector, as found on a factory-fresh part.
func (f *Flash) Format() error {
	if err := f.Begin(); err != nil {
		return err
	}
	for s := uint64(0); s < f.nsectors; s++ {
		if err := f.EraseSector(s); err != nil {
			return err
		}
	}
	return f.d.Barrier()
}

// FailAfter lets n more mutating operations through, then fails the rest.
func (f *Flash) FailAfter(n uint64) {
	f.failing = true
	f.opsBudget = n
}

// Restore powers the part back on.
func (f *Flash) Restore() {
	f.failing = false
}

func (f *Flash) spend() error {
	if !f.failing {
		return nil
	}
	if f.opsBudget == 0 {
		return ErrPowerLoss
	}
	f.opsBudget--
	return nil
}

func (f *Flash) EraseCount(sector common.Snum) uint64 {
	if sector >= uint64(len(f.erases)) {
		return 0
	}
	return f.erases[sector]
}

// Programs is the number of successful page programs so far.
func (f *Flash) Programs() uint64 {
	return f.programs
}

func (f *Flash) ReadBytes(a uint64, b []byte) (uint64, error) {
	if !f.begun {
		return 0, ErrNotBegun
	}
	var n uint64
	blk := make(disk.Block, disk.BlockSize)
	for n < uint64(len(b)) {
		at := addr.FromFlat(a + n)
		if at.Sector >= f.nsectors {
			return n, fmt.Errorf("%w: read at %v", ErrOutOfRange, at)
		}
		if err := f.d.ReadTo(at.Sector, blk); err != nil {
			return n, err
		}
		n += uint64(copy(b[n:], blk[at.Off:]))
	}
	return n, nil
}

// WriteBytes programs b at a, stopping at the end of a's page.
func (f *Flash) WriteBytes(a uint64, b []byte) (uint64, error) {
	if !f.begun {
		return 0, ErrNotBegun
	}
	at := addr.FromFlat(a)
	if at.Sector >= f.nsectors {
		return 0, fmt.Errorf("%w: write at %v", ErrOutOfRange, at)
	}
	if err := f.spend(); err != nil {
		return 0, err
	}
	n := util.Min(uint64(len(b)), addr.LeftOnPage(a))
	blk, err := f.d.Read(at.Sector)
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < n; i++ {
		blk[at.Off+i] &= b[i]
	}
	if err := f.d.Write(at.Sector, blk); err != nil {
		return 0, err
	}
	f.programs++
	util.DPrintf(10, "program %v len %d\n", at, n)
	return n, nil
}

func (f *Flash) EraseSector(sector common.Snum) error {
	if !f.begun {
		return ErrNotBegun
	}
	if sector >= f.nsectors {
		return fmt.Errorf("%w: erase sector %d", ErrOutOfRange, sector)
	}
	if err := f.spend(); err != nil {
		return err
	}
	blk := make(disk.Block, disk.BlockSize)
	for i := range blk {
		blk[i] = common.ErasedByte
	}
	if err := f.d.Write(sector, blk); err != nil {
		return err
	}
	f.erases[sector]++
	util.DPrintf(5, "erase sector %d\n", sector)
	return nil
}

// Close flushes and releases the backing disk.
func (f *Flash) Close() error {
	err := f.d.Barrier()
	if cerr := f.d.Close(); err == nil {
		err = cerr
	}
	return err
}
