package types

import (
	"fmt"

	"github.com/indexfs/indexfs/ifs/util"
)

// TreeOffset is a byte offset into the directory tree file. Offset 0 is the
// root directory's first chunk, so 0 doubles as the null child pointer.
type TreeOffset uint64

const (
	OffsetSize = 8 // uint64 size

	ChunkSize        = 1024 // capacity of the packed entries region
	ChunkHeaderSize  = 6    // u32 region length + u16 entry count
	ChunkTrailerSize = 8    // u64 next chunk offset

	// EntryOverhead is the on-disk bytes an entry needs beyond its name:
	// the u16 length prefix plus the u64 child pointer.
	EntryOverhead = 10

	// MinEntryLength is the smallest valid entry length prefix. The prefix
	// counts the name bytes plus the child pointer, so anything below 8
	// is corrupt.
	MinEntryLength = 8
)

func (o TreeOffset) IsNull() bool {
	return o == 0
}

func (o TreeOffset) String() string {
	return fmt.Sprintf("@%d", uint64(o))
}

func OffsetToBytes(bytes []byte, offset TreeOffset) {
	util.Uint64toBytes(bytes, uint64(offset))
}

func BytesToOffset(bytes []byte) TreeOffset {
	return TreeOffset(util.BytesToUint64(bytes[0:OffsetSize]))
}
