package region

import (
	"errors"
	"fmt"
	"math"

	"github.com/mit-pdos/go-flashlog/common"
	"github.com/mit-pdos/go-flashlog/util"
)

// Open checks the region's geometry against the device and recovers the
// cursor from the flash contents. Geometry errors are reported before the
// device is touched.
func Open(dev Device, startSector, sectorCount, recordLen uint64) (*Region, error) {
	if sectorCount < 2 {
		return nil, fmt.Errorf("%w: must have at least 2 sectors in region, have %d",
			ErrGeometry, sectorCount)
	}
	if recordLen == 0 || recordLen > MaxRecordLen(common.SectorSize) {
		return nil, fmt.Errorf("%w: record length %d not in [1, %d]",
			ErrGeometry, recordLen, MaxRecordLen(common.SectorSize))
	}
	if util.SumOverflows(startSector, sectorCount) ||
		startSector+sectorCount > math.MaxUint32 {
		return nil, fmt.Errorf("%w: sectors [%d, +%d)", ErrOutOfRange, startSector, sectorCount)
	}

	if err := dev.Begin(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}
	nsectors := dev.SizeInSectors()
	if startSector >= nsectors {
		return nil, fmt.Errorf("%w: start sector %d beyond %d sectors",
			ErrOutOfRange, startSector, nsectors)
	}
	if startSector+sectorCount > nsectors {
		return nil, fmt.Errorf("%w: region [%d, %d) extends past %d sectors",
			ErrOutOfRange, startSector, startSector+sectorCount, nsectors)
	}

	r := &Region{
		dev:    dev,
		start:  startSector,
		end:    startSector + sectorCount,
		layout: MkLayout(recordLen, common.SectorSize),
		magic:  Fingerprint(uint32(recordLen), uint32(startSector), uint32(sectorCount)),
	}
	st, err := r.recover()
	if err != nil {
		return nil, err
	}
	r.st = st

	util.DPrintf(1, "region [%d, %d) open: record %d, %d per sector, bitmap %d; "+
		"serial %d sector %d slot %d\n",
		r.start, r.end, r.layout.RecordLen, r.layout.EntriesPerSector,
		r.layout.BitmapLen, st.Serial, st.Sector, st.Slot)
	return r, nil
}

func (r *Region) readHeader(sector common.Snum) (header, error) {
	b := make([]byte, common.HeaderSize)
	n, err := r.dev.ReadBytes(r.layout.HeaderAddr(sector), b)
	if err != nil {
		return header{}, fmt.Errorf("%w: read header of sector %d: %v", ErrIO, sector, err)
	}
	if n != common.HeaderSize {
		return header{}, fmt.Errorf("%w: short header read of sector %d", ErrIO, sector)
	}
	return decodeHeader(b), nil
}

func (r *Region) readBitmap(sector common.Snum) (uint64, bool, error) {
	b := make([]byte, r.layout.BitmapLen)
	n, err := r.dev.ReadBytes(r.layout.BitmapAddr(sector), b)
	if err != nil {
		return 0, false, fmt.Errorf("%w: read bitmap of sector %d: %v", ErrIO, sector, err)
	}
	if n != r.layout.BitmapLen {
		return 0, false, fmt.Errorf("%w: short bitmap read of sector %d", ErrIO, sector)
	}
	return lastCommitted(b, r.layout.EntriesPerSector)
}

// scan finds the newest sector. Sectors are written in ascending order, so
// past the newest one either the fingerprint stops matching or the serial
// drops. A foreign start sector is skipped rather than ending the scan: it is
// what a wrap leaves behind when power fails between erase and header.
func (r *Region) scan() (State, error) {
	st := State{Serial: common.NotFoundSerial}
	for s := r.start; s < r.end; s++ {
		h, err := r.readHeader(s)
		if err != nil {
			return st, err
		}
		if h.magic != r.magic {
			// Unlike any later sector, a foreign start sector does not
			// end the scan; the previous generation may follow it.
			if s == r.start {
				continue
			}
			break
		}
		if h.serial < st.Serial {
			break
		}
		st.Serial = h.serial
		st.Sector = s
	}
	return st, nil
}

func (r *Region) prevSector(sector common.Snum) common.Snum {
	if sector == r.start {
		return r.end - 1
	}
	return sector - 1
}

func (r *Region) recover() (State, error) {
	st, err := r.scan()
	if err != nil || st.empty() {
		return st, err
	}
	slot, ok, err := r.readBitmap(st.Sector)
	if errors.Is(err, ErrCorruptBitmap) {
		util.DPrintf(1, "bitmap was ill formed in sector %d\n", st.Sector)
		return State{Serial: common.NotFoundSerial}, nil
	}
	if err != nil {
		return st, err
	}
	if ok {
		st.Slot = slot
		return st, nil
	}

	// The newest sector was stamped but nothing in it committed. Its
	// erased slot 0 is not a record; the last one of the previous
	// generation is.
	util.DPrintf(1, "sector %d has no committed slot\n", st.Sector)
	if st.Serial == common.FirstSerial {
		return State{Serial: common.NotFoundSerial}, nil
	}
	prev := r.prevSector(st.Sector)
	h, err := r.readHeader(prev)
	if err != nil {
		return st, err
	}
	if h.magic != r.magic || h.serial != st.Serial-1 {
		return State{Serial: common.NotFoundSerial}, nil
	}
	slot, ok, err = r.readBitmap(prev)
	if errors.Is(err, ErrCorruptBitmap) {
		util.DPrintf(1, "bitmap was ill formed in sector %d\n", prev)
		return State{Serial: common.NotFoundSerial}, nil
	}
	if err != nil {
		return st, err
	}
	if !ok {
		return State{Serial: common.NotFoundSerial}, nil
	}
	return State{Serial: h.serial, Sector: prev, Slot: slot}, nil
}
