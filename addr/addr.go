package addr

import (
	"fmt"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-flashlog/common"
)

// Addr identifies a byte on the flash device.
//
// Sector is the erase sector containing the byte and Off is the byte offset
// within that sector. A sector is one disk block.
type Addr struct {
	Sector common.Snum
	Off    uint64
}

func (a Addr) Flatid() uint64 {
	return a.Sector*disk.BlockSize + a.Off
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.Sector, a.Off)
}

func MkAddr(sector common.Snum, off uint64) Addr {
	return Addr{Sector: sector, Off: off}
}

func FromFlat(a uint64) Addr {
	return MkAddr(a/disk.BlockSize, a%disk.BlockSize)
}

// LeftOnPage is the number of bytes from a to the end of its page.
func LeftOnPage(a uint64) uint64 {
	return common.PageSize - (a & (common.PageSize - 1))
}

// LeftInSector is the number of bytes from a to the end of its sector.
func (a Addr) LeftInSector() uint64 {
	return disk.BlockSize - a.Off
}
