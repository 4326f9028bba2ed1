package storage

import (
	"fmt"
	"sort"

	"github.com/golang/glog"

	"github.com/indexfs/indexfs/ifs/stats"
	"github.com/indexfs/indexfs/ifs/storage/types"
)

// chunkRange is one chunk's occupied byte range [start, end) in the backing
// file.
type chunkRange struct {
	start int64
	end   int64
}

// newChunk allocates storage for a fresh chunk of the standard capacity,
// preferring a gap left behind by chunks no longer reachable from the root
// over growing the file. inFlight ranges are treated as occupied even
// though the layout walk cannot see them yet.
func (t *DirTree) newChunk(inFlight []chunkRange) (*DirChunk, error) {
	fileSize, _, err := t.dataFile.GetStat()
	if err != nil {
		return nil, fmt.Errorf("stat directory tree file %s: %v", t.fileName, err)
	}
	size := int64(types.ChunkSize) + types.ChunkHeaderSize + types.ChunkTrailerSize
	location, err := t.nextChunkLocation(size, fileSize, inFlight)
	if err != nil {
		return nil, err
	}

	placement := "appended"
	if int64(location) < fileSize {
		placement = "reused"
	}
	stats.TreeChunkAllocateCounter.WithLabelValues(placement).Inc()
	glog.V(2).Infof("allocating chunk at %s (%s)", location, placement)

	chunk := NewDirChunk(location, types.ChunkSize)
	if err := chunk.WriteEmpty(t.dataFile); err != nil {
		return nil, err
	}
	return chunk, nil
}

// nextChunkLocation walks the whole tree from the root, collects every
// reachable chunk's occupied range, and returns the start of the first gap
// of at least `amount` bytes between the sorted ranges. With no such gap
// the chunk goes at the end of the file.
func (t *DirTree) nextChunkLocation(amount int64, fileSize int64, inFlight []chunkRange) (types.TreeOffset, error) {
	ranges := append([]chunkRange(nil), inFlight...)
	if err := t.collectChunkRanges(0, &ranges); err != nil {
		return 0, err
	}
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].start < ranges[j].start
	})

	var previousEnd int64
	for _, r := range ranges {
		if r.start-previousEnd >= amount {
			return types.TreeOffset(previousEnd), nil
		}
		if r.end > previousEnd {
			previousEnd = r.end
		}
	}
	// the stretch between the last reachable chunk and the end of the file
	// is reusable too
	if fileSize-previousEnd >= amount {
		return types.TreeOffset(previousEnd), nil
	}
	return types.TreeOffset(fileSize), nil
}

// collectChunkRanges records the occupied range of every chunk reachable
// from the chain starting at `location`, recursing into each subdirectory's
// own chain.
func (t *DirTree) collectChunkRanges(location types.TreeOffset, ranges *[]chunkRange) error {
	for {
		chunk, err := ReadDirChunk(location, t.dataFile)
		if err != nil {
			return err
		}
		*ranges = append(*ranges, chunkRange{int64(location), int64(location) + chunk.Size()})

		entries, err := chunk.ReadEntries(t.dataFile)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				if err := t.collectChunkRanges(entry.ChildPointer, ranges); err != nil {
					return err
				}
			}
		}
		if chunk.Next.IsNull() {
			return nil
		}
		location = chunk.Next
	}
}
