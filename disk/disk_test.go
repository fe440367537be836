package disk

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func mkBlock(b byte) Block {
	block := make(Block, BlockSize)
	for i := range block {
		block[i] = b
	}
	return block
}

type DiskSuite struct {
	suite.Suite
	mk func(numBlocks uint64) Disk
}

func (suite *DiskSuite) TestReadWrite() {
	d := suite.mk(4)
	defer d.Close()
	suite.Require().NoError(d.Write(2, mkBlock(7)))
	b, err := d.Read(2)
	suite.Require().NoError(err)
	suite.Equal(mkBlock(7), b)
	b, err = d.Read(1)
	suite.Require().NoError(err)
	suite.Equal(mkBlock(0), b, "unwritten blocks read as zero")
	suite.NoError(d.Barrier())
}

func (suite *DiskSuite) TestWriteCopies() {
	d := suite.mk(2)
	defer d.Close()
	v := mkBlock(1)
	suite.Require().NoError(d.Write(0, v))
	v[0] = 9
	b, err := d.Read(0)
	suite.Require().NoError(err)
	suite.Equal(byte(1), b[0])
}

func (suite *DiskSuite) TestBounds() {
	d := suite.mk(2)
	defer d.Close()
	sz, err := d.Size()
	suite.Require().NoError(err)
	suite.Equal(uint64(2), sz)
	suite.True(errors.Is(d.Write(2, mkBlock(0)), ErrOutOfBounds))
	suite.True(errors.Is(d.ReadTo(5, mkBlock(0)), ErrOutOfBounds))
	suite.True(errors.Is(d.Write(0, make(Block, 10)), ErrBlockSize))
}

func TestMemDisk(t *testing.T) {
	suite.Run(t, &DiskSuite{mk: NewMemDisk})
}

func TestFileDisk(t *testing.T) {
	dir, err := ioutil.TempDir("", "flashlog")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	n := 0
	suite.Run(t, &DiskSuite{mk: func(numBlocks uint64) Disk {
		n++
		d, err := NewFileDisk(filepath.Join(dir, string(rune('a'+n))), numBlocks)
		require.NoError(t, err)
		return d
	}})
}

func TestFileDiskPersists(t *testing.T) {
	assert := assert.New(t)
	dir, err := ioutil.TempDir("", "flashlog")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "image")

	d, err := NewFileDisk(path, 3)
	require.NoError(t, err)
	require.NoError(t, d.Write(1, mkBlock(0xa5)))
	require.NoError(t, d.Close())

	d, err = NewFileDisk(path, 3)
	require.NoError(t, err)
	defer d.Close()
	b, err := d.Read(1)
	assert.NoError(err)
	assert.Equal(mkBlock(0xa5), b)
}

func TestFileDiskSize(t *testing.T) {
	assert := assert.New(t)
	dir, err := ioutil.TempDir("", "flashlog")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "image")

	_, err = NewFileDisk(path, 0)
	assert.True(errors.Is(err, ErrImageSize), "a new image needs a size")

	d, err := NewFileDisk(path, 4)
	require.NoError(t, err)
	require.NoError(t, d.Write(3, mkBlock(0x5a)))
	require.NoError(t, d.Close())

	_, err = NewFileDisk(path, 2)
	assert.True(errors.Is(err, ErrImageSize))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(int64(4*BlockSize), st.Size(), "a mismatched open leaves the image alone")

	d, err = NewFileDisk(path, 0)
	require.NoError(t, err)
	defer d.Close()
	sz, err := d.Size()
	assert.NoError(err)
	assert.Equal(uint64(4), sz)
	b, err := d.Read(3)
	assert.NoError(err)
	assert.Equal(mkBlock(0x5a), b)
}
