package region

import (
	"github.com/mit-pdos/go-flashlog/common"
	"github.com/mit-pdos/go-flashlog/util"
)

// Layout of a sector:
//
//	[ header: fingerprint u32 | serial u32 ]
//	[ commit bitmap: one bit per slot, 0 = committed ]
//	[ slot 0 ][ slot 1 ] ... [ slot EntriesPerSector-1 ]
//
// The fingerprint guards against reading unrelated data as valid, and the
// serial orders sectors once the region has wrapped and all of them are valid.
type Layout struct {
	RecordLen        uint64
	SectorSize       uint64
	EntriesPerSector uint64
	BitmapLen        uint64
}

func MaxRecordLen(sectorSize uint64) uint64 {
	return sectorSize - common.HeaderSize - 1
}

// MkLayout expects 0 < recordLen <= MaxRecordLen(sectorSize).
func MkLayout(recordLen uint64, sectorSize uint64) Layout {
	entries := 8 * (sectorSize - common.HeaderSize) / (8*recordLen + 1)
	return Layout{
		RecordLen:        recordLen,
		SectorSize:       sectorSize,
		EntriesPerSector: entries,
		BitmapLen:        util.RoundUp(entries, 8),
	}
}

func (l Layout) HeaderAddr(sector common.Snum) uint64 {
	return sector * l.SectorSize
}

func (l Layout) BitmapAddr(sector common.Snum) uint64 {
	return l.HeaderAddr(sector) + common.HeaderSize
}

func (l Layout) DataAddr(sector common.Snum, slot uint64) uint64 {
	return l.BitmapAddr(sector) + l.BitmapLen + slot*l.RecordLen
}

// Fingerprint binds on-flash data to the geometry of the region that wrote
// it. The low bit is always clear so an erased header never matches.
func Fingerprint(recordLen, startSector, sectorCount uint32) uint32 {
	return (1176328692 ^
		(recordLen+123)*0x08040201 ^ // every 9 bits
		(startSector+456)*0x20100401 ^ // every 10 bits
		(sectorCount+789)*0x10204081) &^ 1 // every 7 bits
}
