package region

import "errors"

var (
	ErrDeviceInit    = errors.New("device init failed")
	ErrGeometry      = errors.New("bad region geometry")
	ErrOutOfRange    = errors.New("region exceeds device capacity")
	ErrIO            = errors.New("flash i/o failed")
	ErrCorruptBitmap = errors.New("commit bitmap is ill formed")
)
