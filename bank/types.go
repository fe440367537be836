package bank

import (
	"errors"
	"io"
	"sync"

	"github.com/nnsgmsone/damrey/logger"

	"github.com/mit-pdos/go-flashlog/region"
)

// StateIndex is the region holding the live state. Memories are numbered
// from 1.
const StateIndex uint64 = 0

var (
	ErrBadIndex = errors.New("no such memory")
	ErrConfig   = errors.New("bad bank configuration")
)

/*
Config lays out 1+Memories regions of SectorsPerRegion sectors each,
back to back from StartSector. Every region holds records of RecordLength
bytes.
*/
type Config struct {
	LogWriter        io.Writer `yaml:"-"`
	StartSector      uint64    `yaml:"start_sector"`
	SectorsPerRegion uint64    `yaml:"sectors_per_region"`
	RecordLength     uint64    `yaml:"record_length"`
	Memories         uint64    `yaml:"memories"`
}

// Bank is safe for concurrent use; it serializes access to the device.
type Bank struct {
	mu      sync.Mutex
	cfg     Config
	log     logger.Log
	regions []*region.Region
}
