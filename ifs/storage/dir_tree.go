package storage

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/indexfs/indexfs/ifs/stats"
	"github.com/indexfs/indexfs/ifs/storage/backend"
	"github.com/indexfs/indexfs/ifs/storage/types"
	"github.com/indexfs/indexfs/ifs/util"
)

// DirTree is a persistent directory tree stored in one flat file. Every
// directory is a chain of fixed-capacity chunks; the root chain starts at
// offset 0. The tree keeps a virtual working directory (a path stack plus
// the cached offset of its chunk-chain head) that Cd-style navigation moves
// around.
//
// The backing file is opened once in Init and kept for the life of the
// handle, with a mutex serializing public operations. The file itself is
// still single-owner: nothing guards against a second process writing it.
type DirTree struct {
	fileName string
	dataFile backend.BackendStorageFile

	dir      []string
	position types.TreeOffset

	// entries mirrors the current directory when entriesCached is set.
	// Navigation drops it; CreateEntry appends to it in place.
	entries       []*DirEntry
	entriesCached bool

	accessLock sync.Mutex
}

func NewDirTree(fileName string) *DirTree {
	return &DirTree{
		fileName: fileName,
	}
}

// Init opens the backing file, creating it with an empty root chunk when it
// does not exist or is empty. Calling Init on an initialized tree is a
// no-op.
func (t *DirTree) Init() error {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()

	if t.dataFile != nil {
		return nil
	}
	if exists, canRead, canWrite, _, _ := util.CheckFile(t.fileName); exists {
		if !canRead {
			return fmt.Errorf("cannot read directory tree file %s", t.fileName)
		}
		if !canWrite {
			return fmt.Errorf("cannot write directory tree file %s", t.fileName)
		}
	}
	f, err := os.OpenFile(t.fileName, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open directory tree file %s: %v", t.fileName, err)
	}
	t.dataFile = backend.NewDiskFile(f)

	size, _, err := t.dataFile.GetStat()
	if err != nil {
		return fmt.Errorf("stat directory tree file %s: %v", t.fileName, err)
	}
	if size == 0 {
		root := NewDirChunk(0, types.ChunkSize)
		if err := root.WriteEmpty(t.dataFile); err != nil {
			return err
		}
		if err := t.dataFile.Sync(); err != nil {
			return err
		}
		glog.V(0).Infof("created directory tree file %s", t.fileName)
	}
	size, _, _ = t.dataFile.GetStat()
	glog.V(1).Infof("loaded directory tree file %s (%s)", t.fileName, humanize.Bytes(uint64(size)))
	stats.TreeFileSizeGauge.WithLabelValues(t.fileName).Set(float64(size))

	return nil
}

func (t *DirTree) Close() error {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()

	if t.dataFile == nil {
		return nil
	}
	err := t.dataFile.Close()
	t.dataFile = nil
	return err
}

// CurrentPath returns the virtual working directory as an absolute path.
func (t *DirTree) CurrentPath() string {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()
	return t.currentPath()
}

func (t *DirTree) currentPath() string {
	return "/" + strings.Join(t.dir, "/")
}

// FileSize returns the size of the backing file in bytes.
func (t *DirTree) FileSize() (uint64, error) {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()

	size, _, err := t.dataFile.GetStat()
	if err != nil {
		return 0, fmt.Errorf("stat directory tree file %s: %v", t.fileName, err)
	}
	return uint64(size), nil
}

// ListEntries returns the current directory's entries in storage order,
// spanning the whole chunk chain.
func (t *DirTree) ListEntries() ([]*DirEntry, error) {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()
	stats.TreeRequestCounter.WithLabelValues(stats.ListEntries).Inc()

	entries, err := t.listEntries()
	if err != nil {
		return nil, err
	}
	out := make([]*DirEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (t *DirTree) listEntries() ([]*DirEntry, error) {
	if t.entriesCached {
		return t.entries, nil
	}
	var entries []*DirEntry
	position := t.position
	for {
		chunk, err := ReadDirChunk(position, t.dataFile)
		if err != nil {
			return nil, err
		}
		chunkEntries, err := chunk.ReadEntries(t.dataFile)
		if err != nil {
			return nil, err
		}
		entries = append(entries, chunkEntries...)
		if chunk.Next.IsNull() {
			break
		}
		position = chunk.Next
	}
	t.entries = entries
	t.entriesCached = true
	return entries, nil
}

func (t *DirTree) invalidateEntries() {
	t.entries = nil
	t.entriesCached = false
}

// ChangeDirectory moves the virtual working directory. A leading separator
// makes the path absolute; ".." pops one segment and re-resolves the
// remaining path from the root, so the cached position is always recomputed
// from authoritative data.
func (t *DirTree) ChangeDirectory(path string) error {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()
	stats.TreeRequestCounter.WithLabelValues(stats.ChangeDirectory).Inc()

	return t.changeDirectory(path)
}

func (t *DirTree) changeDirectory(path string) error {
	if strings.HasPrefix(path, "/") {
		t.position = 0
		t.dir = t.dir[:0]
		t.invalidateEntries()
		path = strings.TrimLeft(path, "/")
	}
	if len(path) == 0 {
		return nil
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			if len(t.dir) > 0 {
				t.dir = t.dir[:len(t.dir)-1]
			}
			if err := t.changeDirectory(t.currentPath()); err != nil {
				return err
			}
			continue
		}
		entries, err := t.listEntries()
		if err != nil {
			return err
		}
		entry := findEntry(entries, part)
		if entry == nil || !entry.IsDir() {
			stats.TreeErrorCounter.WithLabelValues(stats.ChangeDirectory, stats.ErrorNotFound).Inc()
			return fmt.Errorf("%w: %q in %s", ErrEntryNotFound, part, t.currentPath())
		}
		t.position = entry.ChildPointer
		t.dir = append(t.dir, part)
		t.invalidateEntries()
	}
	return nil
}

// HasEntry reports whether the current directory contains an entry named
// `name`.
func (t *DirTree) HasEntry(name string) (bool, error) {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()

	entries, err := t.listEntries()
	if err != nil {
		return false, err
	}
	return findEntry(entries, name) != nil, nil
}

// CreateEntry adds a named entry to the current directory. A directory
// entry gets a freshly allocated chunk chain of its own; a leaf entry gets
// a null child pointer.
func (t *DirTree) CreateEntry(name string, isDir bool) error {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()
	stats.TreeRequestCounter.WithLabelValues(stats.CreateEntry).Inc()

	if len(name) == 0 || strings.Contains(name, "/") {
		stats.TreeErrorCounter.WithLabelValues(stats.CreateEntry, stats.ErrorInvalidData).Inc()
		return fmt.Errorf("%w: entry name %q", ErrInvalidEntry, name)
	}
	entries, err := t.listEntries()
	if err != nil {
		return err
	}
	if findEntry(entries, name) != nil {
		stats.TreeErrorCounter.WithLabelValues(stats.CreateEntry, stats.ErrorAlreadyExists).Inc()
		return fmt.Errorf("%w: %q in %s", ErrEntryExists, name, t.currentPath())
	}

	var pointer types.TreeOffset
	var inFlight []chunkRange
	if isDir {
		child, err := t.newChunk(nil)
		if err != nil {
			return err
		}
		pointer = child.Location
		// not reachable from the root until the record lands, so the
		// layout scan must be told about it explicitly
		inFlight = append(inFlight, chunkRange{int64(child.Location), int64(child.Location) + child.Size()})
	}
	entry := NewDirEntry(name, pointer)

	chunk, writeOffset, err := t.findFreeSpace(uint32(entry.Size()), inFlight)
	if err != nil {
		return err
	}
	if _, err := t.dataFile.WriteAt(entry.Bytes(), int64(writeOffset)); err != nil {
		return fmt.Errorf("write entry %q at %s: %v", name, writeOffset, err)
	}
	chunk.EntryCount++
	if err := chunk.WriteHeader(t.dataFile); err != nil {
		return err
	}
	if err := t.dataFile.Sync(); err != nil {
		return fmt.Errorf("sync directory tree file %s: %v", t.fileName, err)
	}
	if t.entriesCached {
		t.entries = append(t.entries, entry)
	}
	if size, _, err := t.dataFile.GetStat(); err == nil {
		stats.TreeFileSizeGauge.WithLabelValues(t.fileName).Set(float64(size))
	}
	return nil
}

// DeleteEntry removes the named entry from the current directory, reporting
// whether anything was removed. Only the record's own bytes are reclaimed;
// a deleted directory's chunk chain is left unreferenced for the layout
// scan to reuse later. The cached entry list is left untouched and goes
// stale across this call.
func (t *DirTree) DeleteEntry(name string) (bool, error) {
	t.accessLock.Lock()
	defer t.accessLock.Unlock()
	stats.TreeRequestCounter.WithLabelValues(stats.DeleteEntry).Inc()

	position := t.position
	for {
		chunk, err := ReadDirChunk(position, t.dataFile)
		if err != nil {
			return false, err
		}
		entries, err := chunk.ReadEntries(t.dataFile)
		if err != nil {
			return false, err
		}
		if findEntry(entries, name) != nil {
			if err := chunk.DeleteEntry(name, t.dataFile); err != nil {
				return false, err
			}
			if err := t.dataFile.Sync(); err != nil {
				return false, fmt.Errorf("sync directory tree file %s: %v", t.fileName, err)
			}
			return true, nil
		}
		if chunk.Next.IsNull() {
			stats.TreeErrorCounter.WithLabelValues(stats.DeleteEntry, stats.ErrorNotFound).Inc()
			return false, nil
		}
		position = chunk.Next
	}
}

// findFreeSpace picks the first chunk in the current chain with strictly
// more free bytes than the record needs, extending the chain with a fresh
// chunk when every link is full.
func (t *DirTree) findFreeSpace(amount uint32, inFlight []chunkRange) (*DirChunk, types.TreeOffset, error) {
	chunk, err := ReadDirChunk(t.position, t.dataFile)
	if err != nil {
		return nil, 0, err
	}
	for {
		available, writeOffset, err := chunk.FreeSpace(t.dataFile)
		if err != nil {
			return nil, 0, err
		}
		if available > amount {
			return chunk, writeOffset, nil
		}
		if chunk.Next.IsNull() {
			newChunk, err := t.newChunk(inFlight)
			if err != nil {
				return nil, 0, err
			}
			chunk.Next = newChunk.Location
			if err := chunk.WriteNextPointer(t.dataFile); err != nil {
				return nil, 0, err
			}
			return newChunk, types.TreeOffset(newChunk.regionOffset()), nil
		}
		chunk, err = ReadDirChunk(chunk.Next, t.dataFile)
		if err != nil {
			return nil, 0, err
		}
	}
}

func findEntry(entries []*DirEntry, name string) *DirEntry {
	for _, entry := range entries {
		if entry.Name == name {
			return entry
		}
	}
	return nil
}
