package region

// commitByte is one legal value of a commit bitmap byte: how many of its
// eight slots are committed, counting from the low-order bit. Committing
// slot i of a byte clears bits 0..i, so only nine patterns can occur.
type commitByte uint8

const (
	noneCommitted commitByte = 0
	allCommitted  commitByte = 8
)

func decodeCommitByte(b byte) (commitByte, bool) {
	for c := noneCommitted; c <= allCommitted; c++ {
		if c.raw() == b {
			return c, true
		}
	}
	return 0, false
}

func (c commitByte) raw() byte {
	return byte(0xff) << uint(c)
}

// commitPattern is the byte that marks slot committed within its bitmap byte.
func commitPattern(slot uint64) byte {
	return commitByte(slot%8 + 1).raw()
}

// lastCommitted decodes a sector's bitmap. It returns the highest committed
// slot, or ok == false if no slot is committed. A byte outside the nine legal
// patterns, or more committed slots than the sector holds, is corruption.
func lastCommitted(bitmap []byte, entries uint64) (slot uint64, ok bool, err error) {
	for i, b := range bitmap {
		c, legal := decodeCommitByte(b)
		if !legal {
			return 0, false, ErrCorruptBitmap
		}
		if c == noneCommitted {
			break
		}
		slot = uint64(i)*8 + uint64(c) - 1
		ok = true
		if c != allCommitted {
			break
		}
	}
	if ok && slot >= entries {
		return 0, false, ErrCorruptBitmap
	}
	return slot, ok, nil
}
