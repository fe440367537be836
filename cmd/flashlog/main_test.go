package main

import (
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flashlog/bank"
	"github.com/mit-pdos/go-flashlog/disk"
)

const record = "00112233445566778899aabbccddeeff"

func tempImage(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir("", "flashlog")
	require.NoError(t, err)
	return filepath.Join(dir, "flash.img"), func() { os.RemoveAll(dir) }
}

func mustRun(t *testing.T, image string, sectors uint64, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(&out, image, sectors, "", args))
	return out.String()
}

func TestRun(t *testing.T) {
	assert := assert.New(t)
	image, cleanup := tempImage(t)
	defer cleanup()

	assert.True(errors.Is(run(ioutil.Discard, image, 0, "", nil), errUsage))
	mustRun(t, image, 0, "format")
	mustRun(t, image, 0, "write", "3", record)

	assert.Equal(record+"\n", mustRun(t, image, 0, "read", "3"))
	assert.Equal("(empty)\n", mustRun(t, image, 0, "read", "4"))

	info := mustRun(t, image, 0, "info")
	assert.True(strings.HasPrefix(info, "record length 16, 4 sectors per region, from sector 0\n"))
	assert.Contains(info, "memory 3: serial 1 sector 12 slot 0\n")
	assert.Contains(info, "memory 4: serial 0 sector 0 slot 0\n")

	assert.Error(run(ioutil.Discard, image, 0, "", []string{"write", "3", "0011"}))
	assert.Error(run(ioutil.Discard, image, 0, "", []string{"write", "x", "00"}))
	assert.True(errors.Is(run(ioutil.Discard, image, 0, "", []string{"write", "99", record}),
		bank.ErrBadIndex))
	assert.True(errors.Is(run(ioutil.Discard, image, 0, "", []string{"bogus"}), errUsage))
}

func TestFormatSize(t *testing.T) {
	assert := assert.New(t)
	image, cleanup := tempImage(t)
	defer cleanup()

	mustRun(t, image, 0, "format")
	st, err := os.Stat(image)
	require.NoError(t, err)
	assert.Equal(int64(defaultSectors*disk.BlockSize), st.Size())

	mustRun(t, image, 0, "format")
	st, err = os.Stat(image)
	require.NoError(t, err)
	assert.Equal(int64(defaultSectors*disk.BlockSize), st.Size(), "reformat keeps the size")
}

func TestSizeMismatchKeepsImage(t *testing.T) {
	assert := assert.New(t)
	image, cleanup := tempImage(t)
	defer cleanup()

	mustRun(t, image, 64, "format")
	mustRun(t, image, 64, "write", "9", record)

	for _, cmd := range [][]string{{"info"}, {"read", "9"}, {"format"}} {
		err := run(ioutil.Discard, image, 8, "", cmd)
		assert.True(errors.Is(err, disk.ErrImageSize), "%v: %v", cmd, err)
	}
	st, err := os.Stat(image)
	require.NoError(t, err)
	assert.Equal(int64(64*disk.BlockSize), st.Size())

	assert.Equal(record+"\n", mustRun(t, image, 64, "read", "9"))
	assert.Equal(record+"\n", mustRun(t, image, 0, "read", "9"))
}

func TestNewImageNeedsSize(t *testing.T) {
	image, cleanup := tempImage(t)
	defer cleanup()
	err := run(ioutil.Discard, image, 0, "", []string{"info"})
	assert.True(t, errors.Is(err, disk.ErrImageSize))
}

var errBarrier = errors.New("fsync failed")

// unsyncedDisk cannot make writes durable.
type unsyncedDisk struct {
	disk.Disk
}

func (d unsyncedDisk) Barrier() error {
	return errBarrier
}

func TestCloseErrorReported(t *testing.T) {
	image, cleanup := tempImage(t)
	defer cleanup()
	mustRun(t, image, 0, "format")

	openImage = func(path string, n uint64) (disk.Disk, error) {
		d, err := disk.NewFileDisk(path, n)
		if err != nil {
			return nil, err
		}
		return unsyncedDisk{d}, nil
	}
	defer func() { openImage = disk.NewFileDisk }()

	err := run(ioutil.Discard, image, 0, "", []string{"write", "1", record})
	assert.True(t, errors.Is(err, errBarrier))
}
