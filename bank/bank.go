// Package bank keeps a live state record and a set of numbered memories on
// one flash device, each in its own region.
package bank

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/nnsgmsone/damrey/logger"
	"gopkg.in/yaml.v3"

	"github.com/mit-pdos/go-flashlog/region"
	"github.com/mit-pdos/go-flashlog/util"
)

func DefaultConfig() Config {
	return Config{
		LogWriter:        os.Stderr,
		StartSector:      0,
		SectorsPerRegion: 4,
		RecordLength:     16,
		Memories:         9,
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return cfg, nil
}

func (cfg Config) Regions() uint64 {
	return cfg.Memories + 1
}

// Sectors is the number of sectors the bank occupies.
func (cfg Config) Sectors() uint64 {
	return cfg.Regions() * cfg.SectorsPerRegion
}

func (cfg Config) regionStart(i uint64) uint64 {
	return cfg.StartSector + i*cfg.SectorsPerRegion
}

func (cfg Config) validate() error {
	n := cfg.Regions()
	if n == 0 || cfg.SectorsPerRegion == 0 {
		return fmt.Errorf("%w: empty layout", ErrConfig)
	}
	if cfg.Sectors()/n != cfg.SectorsPerRegion ||
		util.SumOverflows(cfg.StartSector, cfg.Sectors()) {
		return fmt.Errorf("%w: %d regions of %d sectors overflow",
			ErrConfig, n, cfg.SectorsPerRegion)
	}
	return nil
}

// Open checks that the whole bank fits on dev before recovering any region.
// Regions are laid out back to back, so they never overlap.
func Open(dev region.Device, cfg Config) (*Bank, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.LogWriter == nil {
		cfg.LogWriter = os.Stderr
	}
	log := logger.New(cfg.LogWriter, "flashlog")
	if err := dev.Begin(); err != nil {
		log.Errorf("flash begin failed: %v\n", err)
		return nil, fmt.Errorf("%w: %v", region.ErrDeviceInit, err)
	}
	if n := dev.SizeInSectors(); cfg.StartSector+cfg.Sectors() > n {
		log.Errorf("bank needs sectors [%d, %d), flash has %d\n",
			cfg.StartSector, cfg.StartSector+cfg.Sectors(), n)
		return nil, fmt.Errorf("%w: bank [%d, %d) past %d sectors",
			region.ErrOutOfRange, cfg.StartSector, cfg.StartSector+cfg.Sectors(), n)
	}
	b := &Bank{cfg: cfg, log: log}
	for i := uint64(0); i < cfg.Regions(); i++ {
		r, err := region.Open(dev, cfg.regionStart(i), cfg.SectorsPerRegion, cfg.RecordLength)
		if err != nil {
			log.Errorf("memory %d at sector %d: open failed: %v\n", i, cfg.regionStart(i), err)
			return nil, err
		}
		b.regions = append(b.regions, r)
	}
	return b, nil
}

func (b *Bank) Config() Config {
	return b.cfg
}

func (b *Bank) get(i uint64) (*region.Region, error) {
	if i >= uint64(len(b.regions)) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrBadIndex, i, len(b.regions)-1)
	}
	return b.regions[i], nil
}

// Load returns the record in memory i; ok is false if it was never stored.
func (b *Bank) Load(i uint64) (rec []byte, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(i)
	if err != nil {
		return nil, false, err
	}
	rec, ok, err = r.ReadCurrent()
	if err != nil {
		b.log.Errorf("memory %d: read failed: %v\n", i, err)
	}
	return rec, ok, err
}

func (b *Bank) Store(i uint64, rec []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(i)
	if err != nil {
		return err
	}
	if err := r.WriteNext(rec); err != nil {
		b.log.Errorf("memory %d: write failed: %v\n", i, err)
		return err
	}
	return nil
}

func (b *Bank) LoadState() ([]byte, bool, error) {
	return b.Load(StateIndex)
}

func (b *Bank) SaveState(rec []byte) error {
	return b.Store(StateIndex, rec)
}

// Cursors reports each region's cursor, indexed like Load.
func (b *Bank) Cursors() []region.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	sts := make([]region.State, len(b.regions))
	for i, r := range b.regions {
		sts[i] = r.State()
	}
	return sts
}
