package common

import (
	"github.com/tchajed/goose/machine/disk"
)

// Flash geometry. A sector is the erase unit and is backed by one disk
// block; a page is the largest unit a single program operation covers.
const (
	SectorSize uint64 = disk.BlockSize
	PageSize   uint64 = 256

	HeaderSize uint64 = 8 // fingerprint:u32, serial:u32
	ErasedByte byte   = 0xff
)

type Serial = uint32

const (
	NotFoundSerial Serial = 0 // must be smallest value
	FirstSerial    Serial = 1
)

type Snum = uint64
