package metaindex

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/indexfs/indexfs/ifs/util"
)

const (
	KeySize    = sha256.Size
	FileIdSize = 4
	OffsetSize = 8

	// MetaEntrySize is the fixed width of one serialized record:
	// 32-byte key | u32 file id | u64 offset.
	MetaEntrySize = KeySize + FileIdSize + OffsetSize

	tableHeaderSize = 8 // u64 entry count
)

// EntryId is the SHA-256 digest of a caller-supplied string identifier.
type EntryId [KeySize]byte

// MetaEntry locates a piece of content: which data file holds it and at
// what byte offset.
type MetaEntry struct {
	FileId uint32
	Offset uint64
}

// MetaIndex maps hashed string identifiers to data locations. It lives in
// memory and round-trips through a flat serialized table.
type MetaIndex struct {
	entries map[EntryId]MetaEntry
}

func NewMetaIndex() *MetaIndex {
	return &MetaIndex{
		entries: make(map[EntryId]MetaEntry),
	}
}

// LoadMetaIndex reads a serialized table: a u64 record count followed by
// that many fixed-width records.
func LoadMetaIndex(r io.Reader) (*MetaIndex, error) {
	header := make([]byte, tableHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read meta index header: %v", err)
	}
	count := util.BytesToUint64(header)

	m := NewMetaIndex()
	record := make([]byte, MetaEntrySize)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, record); err != nil {
			return nil, fmt.Errorf("read meta index record %d of %d: %v", i, count, err)
		}
		var id EntryId
		copy(id[:], record[0:KeySize])
		m.entries[id] = MetaEntry{
			FileId: util.BytesToUint32(record[KeySize : KeySize+FileIdSize]),
			Offset: util.BytesToUint64(record[KeySize+FileIdSize:]),
		}
	}
	return m, nil
}

// Write serializes the table. Record order follows map iteration and is
// not stable across calls.
func (m *MetaIndex) Write(w io.Writer) error {
	header := make([]byte, tableHeaderSize)
	util.Uint64toBytes(header, uint64(len(m.entries)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write meta index header: %v", err)
	}
	record := make([]byte, MetaEntrySize)
	for id, entry := range m.entries {
		copy(record[0:KeySize], id[:])
		util.Uint32toBytes(record[KeySize:KeySize+FileIdSize], entry.FileId)
		util.Uint64toBytes(record[KeySize+FileIdSize:], entry.Offset)
		if _, err := w.Write(record); err != nil {
			return fmt.Errorf("write meta index record: %v", err)
		}
	}
	return nil
}

func (m *MetaIndex) Add(id string, fileId uint32, offset uint64) {
	m.entries[hashId(id)] = MetaEntry{FileId: fileId, Offset: offset}
}

func (m *MetaIndex) Lookup(id string) (MetaEntry, bool) {
	entry, ok := m.entries[hashId(id)]
	return entry, ok
}

func (m *MetaIndex) Remove(id string) {
	delete(m.entries, hashId(id))
}

func (m *MetaIndex) Len() int {
	return len(m.entries)
}

func hashId(id string) EntryId {
	return sha256.Sum256([]byte(id))
}
