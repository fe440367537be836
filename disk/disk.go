package disk

import (
	"errors"

	"github.com/mit-pdos/go-flashlog/common"
)

// Block holds the contents of one flash sector.
type Block = []byte

const BlockSize uint64 = common.SectorSize

var (
	ErrOutOfBounds = errors.New("block out of bounds")
	ErrBlockSize   = errors.New("buffer is not block-sized")
	ErrShortIO     = errors.New("short block transfer")
	ErrImageSize   = errors.New("image size mismatch")
)

// Disk is the sector-granular backing store underneath the flash emulator.
type Disk interface {
	// Read reads a block by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the block at a and stores the result in b
	//
	// Expects a < Size().
	ReadTo(a uint64, b Block) error

	// Write updates a block by address
	//
	// Expects a < Size().
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in blocks
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}
