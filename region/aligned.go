package region

import (
	"github.com/mit-pdos/go-flashlog/addr"
	"github.com/mit-pdos/go-flashlog/util"
)

// writeAligned writes b at a one page at a time, since the device only
// programs within a single page. It returns the number of bytes written,
// stopping at the first chunk that comes up short.
func writeAligned(dev Device, a uint64, b []byte) (uint64, error) {
	var done uint64
	for done < uint64(len(b)) {
		want := util.Min(uint64(len(b))-done, addr.LeftOnPage(a+done))
		n, err := dev.WriteBytes(a+done, b[done:done+want])
		done += n
		if err != nil {
			return done, err
		}
		if n != want {
			break
		}
	}
	return done, nil
}
