package storage

import (
	"fmt"

	"github.com/indexfs/indexfs/ifs/storage/backend"
	"github.com/indexfs/indexfs/ifs/storage/types"
	"github.com/indexfs/indexfs/ifs/util"
)

// DirChunk is one fixed-capacity block of a directory's chunk chain. On disk
// it is laid out as
//
//	u32 region length | u16 entry count | <packed entries> | u64 next chunk offset
//
// with all integers big-endian. Only the first `EntryCount` records of the
// region are live; the tail up to `Length` is free space with undefined
// content.
type DirChunk struct {
	Location   types.TreeOffset
	Length     uint32
	EntryCount uint16
	Next       types.TreeOffset
}

func NewDirChunk(location types.TreeOffset, length uint32) *DirChunk {
	return &DirChunk{
		Location: location,
		Length:   length,
	}
}

// ReadDirChunk loads a chunk's header and trailer without decoding the
// packed entries.
func ReadDirChunk(location types.TreeOffset, f backend.BackendStorageFile) (*DirChunk, error) {
	header := make([]byte, types.ChunkHeaderSize)
	if _, err := f.ReadAt(header, int64(location)); err != nil {
		return nil, fmt.Errorf("read chunk header %s: %v", location, err)
	}
	chunk := &DirChunk{
		Location:   location,
		Length:     util.BytesToUint32(header[0:4]),
		EntryCount: util.BytesToUint16(header[4:6]),
	}
	trailer := make([]byte, types.ChunkTrailerSize)
	if _, err := f.ReadAt(trailer, chunk.trailerOffset()); err != nil {
		return nil, fmt.Errorf("read chunk trailer %s: %v", location, err)
	}
	chunk.Next = types.BytesToOffset(trailer)
	return chunk, nil
}

// Size is the chunk's full on-disk footprint including header and trailer.
func (c *DirChunk) Size() int64 {
	return int64(c.Length) + types.ChunkHeaderSize + types.ChunkTrailerSize
}

func (c *DirChunk) regionOffset() int64 {
	return int64(c.Location) + types.ChunkHeaderSize
}

func (c *DirChunk) trailerOffset() int64 {
	return c.regionOffset() + int64(c.Length)
}

func (c *DirChunk) WriteHeader(f backend.BackendStorageFile) error {
	header := make([]byte, types.ChunkHeaderSize)
	util.Uint32toBytes(header[0:4], c.Length)
	util.Uint16toBytes(header[4:6], c.EntryCount)
	if _, err := f.WriteAt(header, int64(c.Location)); err != nil {
		return fmt.Errorf("write chunk header %s: %v", c.Location, err)
	}
	return nil
}

func (c *DirChunk) WriteNextPointer(f backend.BackendStorageFile) error {
	trailer := make([]byte, types.ChunkTrailerSize)
	types.OffsetToBytes(trailer, c.Next)
	if _, err := f.WriteAt(trailer, c.trailerOffset()); err != nil {
		return fmt.Errorf("write chunk next pointer %s: %v", c.Location, err)
	}
	return nil
}

// WriteEmpty writes the whole chunk footprint with a zero-filled entries
// region, used for brand-new chunks.
func (c *DirChunk) WriteEmpty(f backend.BackendStorageFile) error {
	bytes := make([]byte, c.Size())
	util.Uint32toBytes(bytes[0:4], c.Length)
	util.Uint16toBytes(bytes[4:6], c.EntryCount)
	types.OffsetToBytes(bytes[types.ChunkHeaderSize+int(c.Length):], c.Next)
	if _, err := f.WriteAt(bytes, int64(c.Location)); err != nil {
		return fmt.Errorf("write empty chunk %s: %v", c.Location, err)
	}
	return nil
}

// ReadEntries decodes the chunk's live records in storage order.
func (c *DirChunk) ReadEntries(f backend.BackendStorageFile) ([]*DirEntry, error) {
	region, err := c.readRegion(f)
	if err != nil {
		return nil, err
	}
	entries := make([]*DirEntry, 0, c.EntryCount)
	offset := 0
	for i := uint16(0); i < c.EntryCount; i++ {
		entry, n, err := UnmarshalDirEntry(region[offset:])
		if err != nil {
			return nil, fmt.Errorf("chunk %s entry %d: %w", c.Location, i, err)
		}
		entries = append(entries, entry)
		offset += n
	}
	return entries, nil
}

// FreeSpace walks the live records by their length prefixes, without
// decoding names, and returns the free bytes left in the region plus the
// file offset where the next record would go.
func (c *DirChunk) FreeSpace(f backend.BackendStorageFile) (uint32, types.TreeOffset, error) {
	region, err := c.readRegion(f)
	if err != nil {
		return 0, 0, err
	}
	consumed, err := c.consumedBytes(region)
	if err != nil {
		return 0, 0, err
	}
	available := c.Length - uint32(consumed)
	return available, types.TreeOffset(c.regionOffset() + int64(consumed)), nil
}

// DeleteEntry removes the first record named `name` by shifting the rest of
// the live region over it and shrinking the entry count. Free space is
// reclaimed only within this chunk's own capacity.
func (c *DirChunk) DeleteEntry(name string, f backend.BackendStorageFile) error {
	region, err := c.readRegion(f)
	if err != nil {
		return err
	}
	offset := 0
	for i := uint16(0); i < c.EntryCount; i++ {
		entry, n, err := UnmarshalDirEntry(region[offset:])
		if err != nil {
			return fmt.Errorf("chunk %s entry %d: %w", c.Location, i, err)
		}
		if entry.Name != name {
			offset += n
			continue
		}
		consumed, err := c.consumedBytes(region)
		if err != nil {
			return err
		}
		tail := region[offset+n : consumed]
		if len(tail) > 0 {
			if _, err := f.WriteAt(tail, c.regionOffset()+int64(offset)); err != nil {
				return fmt.Errorf("compact chunk %s: %v", c.Location, err)
			}
		}
		c.EntryCount--
		return c.WriteHeader(f)
	}
	return fmt.Errorf("%w: %q in chunk %s", ErrEntryNotFound, name, c.Location)
}

func (c *DirChunk) readRegion(f backend.BackendStorageFile) ([]byte, error) {
	region := make([]byte, c.Length)
	if _, err := f.ReadAt(region, c.regionOffset()); err != nil {
		return nil, fmt.Errorf("read chunk region %s: %v", c.Location, err)
	}
	return region, nil
}

// consumedBytes sums the live records' on-disk sizes by hopping over their
// length prefixes.
func (c *DirChunk) consumedBytes(region []byte) (int, error) {
	consumed := 0
	for i := uint16(0); i < c.EntryCount; i++ {
		if consumed+2 > len(region) {
			return 0, fmt.Errorf("%w: chunk %s region overrun at entry %d", ErrInvalidEntry, c.Location, i)
		}
		length := util.BytesToUint16(region[consumed : consumed+2])
		if length < types.MinEntryLength {
			return 0, fmt.Errorf("%w: entry length prefix %d in chunk %s", ErrInvalidEntry, length, c.Location)
		}
		consumed += 2 + int(length)
	}
	if consumed > len(region) {
		return 0, fmt.Errorf("%w: chunk %s records overrun the region", ErrInvalidEntry, c.Location)
	}
	return consumed, nil
}
