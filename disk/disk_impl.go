package disk

import (
	"fmt"

	goose "github.com/tchajed/goose/machine/disk"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-flashlog/util"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
}

// NewFileDisk opens an image file of numBlocks blocks. A new or empty file
// is sized to numBlocks; an existing image must already have that size, or
// numBlocks is 0 and the image's own size is used.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if (stat.Mode&unix.S_IFREG) == 0 {
		return fileDisk{fd, numBlocks}, nil
	}
	size := uint64(stat.Size)
	switch {
	case size == 0 && numBlocks == 0:
		err = fmt.Errorf("%w: %s is empty and no size given", ErrImageSize, path)
	case size == 0:
		err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
	case size%BlockSize != 0:
		err = fmt.Errorf("%w: %s is %d bytes, not whole blocks", ErrImageSize, path, size)
	case numBlocks == 0:
		numBlocks = size / BlockSize
	case size != numBlocks*BlockSize:
		err = fmt.Errorf("%w: %s holds %d blocks, want %d",
			ErrImageSize, path, size/BlockSize, numBlocks)
	}
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return fileDisk{fd, numBlocks}, nil
}

func (d fileDisk) check(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		return fmt.Errorf("%w (%d bytes)", ErrBlockSize, len(buf))
	}
	if a >= d.numBlocks {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, a)
	}
	return nil
}

func (d fileDisk) ReadTo(a uint64, buf Block) error {
	if err := d.check(a, buf); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return err
	}
	if uint64(n) != BlockSize {
		return fmt.Errorf("%w: read %d bytes of block %d", ErrShortIO, n, a)
	}
	util.DPrintf(10, "read: %v\n", a)
	return nil
}

func (d fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d fileDisk) Write(a uint64, v Block) error {
	if err := d.check(a, v); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return err
	}
	if uint64(n) != BlockSize {
		return fmt.Errorf("%w: wrote %d bytes of block %d", ErrShortIO, n, a)
	}
	util.DPrintf(10, "write: %v\n", a)
	return nil
}

func (d fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	return unix.Fsync(d.fd)
}

func (d fileDisk) Close() error {
	return unix.Close(d.fd)
}

/////////////////////////
/////////////////////////

var _ Disk = (*memDisk)(nil)

// memDisk checks bounds itself because the goose disk panics on them.
type memDisk struct {
	d         goose.Disk
	numBlocks uint64
}

func NewMemDisk(numBlocks uint64) Disk {
	return memDisk{d: goose.NewMemDisk(numBlocks), numBlocks: numBlocks}
}

func (d memDisk) check(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		return fmt.Errorf("%w (%d bytes)", ErrBlockSize, len(buf))
	}
	if a >= d.numBlocks {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, a)
	}
	return nil
}

func (d memDisk) ReadTo(a uint64, buf Block) error {
	if err := d.check(a, buf); err != nil {
		return err
	}
	copy(buf, d.d.Read(a))
	return nil
}

func (d memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d memDisk) Write(a uint64, v Block) error {
	if err := d.check(a, v); err != nil {
		return err
	}
	// the goose disk keeps the slice it is handed
	blk := make(Block, BlockSize)
	copy(blk, v)
	d.d.Write(a, blk)
	return nil
}

func (d memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return d.numBlocks, nil
}

func (d memDisk) Barrier() error { return nil }

func (d memDisk) Close() error { return nil }
