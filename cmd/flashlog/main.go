// Command flashlog inspects and updates a bank of flash regions stored in an
// image file.
//
//	flashlog [flags] format
//	flashlog [flags] info
//	flashlog [flags] read <memory>
//	flashlog [flags] write <memory> <hex record>
//
// An existing image keeps its size; -sectors only sizes a new one.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/nnsgmsone/damrey/logger"

	"github.com/mit-pdos/go-flashlog/bank"
	"github.com/mit-pdos/go-flashlog/disk"
	"github.com/mit-pdos/go-flashlog/flash"
	"github.com/mit-pdos/go-flashlog/util"
)

const defaultSectors uint64 = 64

// openImage is replaced in tests.
var openImage = disk.NewFileDisk

var errUsage = errors.New("usage: flashlog [flags] format|info|read <memory>|write <memory> <hex>")

func main() {
	image := flag.String("image", "flash.img", "flash image file")
	sectors := flag.Uint64("sectors", 0,
		fmt.Sprintf("flash size in sectors (default: the image's size, or %d for a new image)", defaultSectors))
	config := flag.String("config", "", "bank configuration (YAML)")
	debug := flag.Uint64("debug", 0, "debug print level")
	flag.Parse()

	util.Debug = *debug
	log := logger.New(os.Stderr, "flashlog")
	if err := run(os.Stdout, *image, *sectors, *config, flag.Args()); err != nil {
		log.Fatalf("%v\n", err)
	}
}

func parseIndex(s string) (uint64, error) {
	i, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("memory %q: %v", s, err)
	}
	return i, nil
}

// imageSectors picks the size to open image with. Only format may create an
// image without an explicit size.
func imageSectors(image string, sectors uint64, cmd string) uint64 {
	if sectors != 0 || cmd != "format" {
		return sectors
	}
	if st, err := os.Stat(image); err == nil && st.Size() > 0 {
		return 0
	}
	return defaultSectors
}

func run(w io.Writer, image string, sectors uint64, config string, args []string) (err error) {
	if len(args) == 0 {
		return errUsage
	}
	cfg := bank.DefaultConfig()
	if config != "" {
		if cfg, err = bank.LoadConfig(config); err != nil {
			return err
		}
	}

	d, err := openImage(image, imageSectors(image, sectors, args[0]))
	if err != nil {
		return err
	}
	f := flash.MkFlash(d)
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if args[0] == "format" {
		return f.Format()
	}

	b, err := bank.Open(f, cfg)
	if err != nil {
		return err
	}

	switch args[0] {
	case "info":
		fmt.Fprintf(w, "record length %d, %d sectors per region, from sector %d\n",
			cfg.RecordLength, cfg.SectorsPerRegion, cfg.StartSector)
		for i, st := range b.Cursors() {
			fmt.Fprintf(w, "memory %d: serial %d sector %d slot %d\n",
				i, st.Serial, st.Sector, st.Slot)
		}
		return nil
	case "read":
		if len(args) != 2 {
			return errUsage
		}
		i, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		rec, ok, err := b.Load(i)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "(empty)")
			return nil
		}
		fmt.Fprintln(w, hex.EncodeToString(rec))
		return nil
	case "write":
		if len(args) != 3 {
			return errUsage
		}
		i, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		rec, err := hex.DecodeString(args[2])
		if err != nil {
			return err
		}
		return b.Store(i, rec)
	}
	return errUsage
}
