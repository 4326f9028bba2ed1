package storage

import (
	"fmt"
	"unicode/utf8"

	"github.com/indexfs/indexfs/ifs/storage/types"
	"github.com/indexfs/indexfs/ifs/util"
)

// DirEntry is one named reference inside a directory. A leaf entry carries a
// null child pointer; a directory entry points at its own chunk chain.
type DirEntry struct {
	Name         string
	ChildPointer types.TreeOffset
}

func NewDirEntry(name string, childPointer types.TreeOffset) *DirEntry {
	return &DirEntry{
		Name:         name,
		ChildPointer: childPointer,
	}
}

func (e *DirEntry) IsDir() bool {
	return !e.ChildPointer.IsNull()
}

// Size returns the on-disk footprint of the entry: the u16 length prefix,
// the raw name bytes, and the u64 child pointer.
func (e *DirEntry) Size() int {
	return len(e.Name) + types.EntryOverhead
}

// Bytes encodes the entry. The length prefix counts the name bytes plus the
// 8 pointer bytes, not the raw name length.
func (e *DirEntry) Bytes() []byte {
	nameRaw := []byte(e.Name)
	bytes := make([]byte, e.Size())
	util.Uint16toBytes(bytes[0:2], uint16(len(nameRaw))+types.MinEntryLength)
	copy(bytes[2:2+len(nameRaw)], nameRaw)
	types.OffsetToBytes(bytes[2+len(nameRaw):], e.ChildPointer)
	return bytes
}

// UnmarshalDirEntry decodes one entry record from the front of b, returning
// the entry and the number of bytes consumed.
func UnmarshalDirEntry(b []byte) (*DirEntry, int, error) {
	if len(b) < 2 {
		return nil, 0, fmt.Errorf("%w: truncated entry length prefix", ErrInvalidEntry)
	}
	length := util.BytesToUint16(b[0:2])
	if length < types.MinEntryLength {
		return nil, 0, fmt.Errorf("%w: entry length prefix %d", ErrInvalidEntry, length)
	}
	if len(b) < 2+int(length) {
		return nil, 0, fmt.Errorf("%w: entry record of %d bytes truncated at %d", ErrInvalidEntry, length, len(b)-2)
	}
	nameLen := int(length) - types.OffsetSize
	nameRaw := b[2 : 2+nameLen]
	if !utf8.Valid(nameRaw) {
		return nil, 0, fmt.Errorf("%w: entry name is not valid utf-8", ErrInvalidEntry)
	}
	pointer := types.BytesToOffset(b[2+nameLen : 2+nameLen+types.OffsetSize])

	return &DirEntry{
		Name:         string(nameRaw),
		ChildPointer: pointer,
	}, 2 + int(length), nil
}
