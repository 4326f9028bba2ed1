package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/indexfs/indexfs/ifs/storage/types"
)

func newTestTree(t *testing.T) *DirTree {
	t.Helper()
	tree := NewDirTree(filepath.Join(t.TempDir(), "test.dft"))
	if err := tree.Init(); err != nil {
		t.Fatalf("init tree: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	return tree
}

func entryNames(entries []*DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestDirTreeInitWritesRootChunk(t *testing.T) {
	tree := newTestTree(t)

	size, err := tree.FileSize()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, uint64(types.ChunkSize+14), size)

	entries, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, entries)
	assert.Equal(t, "/", tree.CurrentPath())
}

func TestDirTreeInitIdempotent(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "test.dft")

	tree := NewDirTree(fileName)
	if err := tree.Init(); err != nil {
		t.Fatal(err)
	}
	if err := tree.Init(); err != nil {
		t.Fatal(err)
	}
	if err := tree.CreateEntry("kept", false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Close(); err != nil {
		t.Fatal(err)
	}

	// reopening an initialized file must not wipe it
	reopened := NewDirTree(fileName)
	if err := reopened.Init(); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	entries, err := reopened.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"kept"}, entryNames(entries))
}

func TestDirTreeScenario(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.CreateEntry("a", true); err != nil {
		t.Fatalf("create directory a: %v", err)
	}
	if err := tree.CreateEntry("b", false); err != nil {
		t.Fatalf("create file b: %v", err)
	}

	entries, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %v", entryNames(entries))
	}
	assert.Equal(t, "a", entries[0].Name)
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "b", entries[1].Name)
	assert.True(t, entries[1].ChildPointer.IsNull())

	if err := tree.ChangeDirectory("a"); err != nil {
		t.Fatalf("cd a: %v", err)
	}
	assert.Equal(t, "/a", tree.CurrentPath())
	entries, err = tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, entries)

	if err := tree.ChangeDirectory(".."); err != nil {
		t.Fatalf("cd ..: %v", err)
	}
	assert.Equal(t, "/", tree.CurrentPath())

	found, err := tree.DeleteEntry("a")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, found)

	entries, err = tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"b"}, entryNames(entries))

	found, err = tree.DeleteEntry("a")
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, found)
}

func TestDirTreeCreateEntryValidation(t *testing.T) {
	tree := newTestTree(t)

	err := tree.CreateEntry("", false)
	assert.True(t, errors.Is(err, ErrInvalidEntry), "empty name: got %v", err)

	err = tree.CreateEntry("with/separator", false)
	assert.True(t, errors.Is(err, ErrInvalidEntry), "separator: got %v", err)

	if err := tree.CreateEntry("twice", false); err != nil {
		t.Fatal(err)
	}
	err = tree.CreateEntry("twice", true)
	assert.True(t, errors.Is(err, ErrEntryExists), "duplicate: got %v", err)
}

func TestDirTreeUniqueNames(t *testing.T) {
	tree := newTestTree(t)

	for i := 0; i < 40; i++ {
		if err := tree.CreateEntry(fmt.Sprintf("entry-%d", i%20), i%2 == 0); err != nil && !errors.Is(err, ErrEntryExists) {
			t.Fatalf("create: %v", err)
		}
	}
	entries, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, name := range entryNames(entries) {
		if seen[name] {
			t.Fatalf("duplicate entry name %q", name)
		}
		seen[name] = true
	}
	assert.Equal(t, 20, len(entries))
}

func TestDirTreeNavigation(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.CreateEntry("a", true); err != nil {
		t.Fatal(err)
	}
	if err := tree.ChangeDirectory("a"); err != nil {
		t.Fatal(err)
	}
	if err := tree.CreateEntry("b", true); err != nil {
		t.Fatal(err)
	}

	// relative multi-segment from the root
	if err := tree.ChangeDirectory("/"); err != nil {
		t.Fatal(err)
	}
	if err := tree.ChangeDirectory("a/b"); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "/a/b", tree.CurrentPath())

	// .. returns to the parent that was current before descending
	if err := tree.ChangeDirectory(".."); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "/a", tree.CurrentPath())

	// absolute path resets the cursor
	if err := tree.ChangeDirectory("/a/b"); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "/a/b", tree.CurrentPath())

	// .. at the root stays at the root
	if err := tree.ChangeDirectory("/"); err != nil {
		t.Fatal(err)
	}
	if err := tree.ChangeDirectory(".."); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "/", tree.CurrentPath())

	err := tree.ChangeDirectory("missing")
	assert.True(t, errors.Is(err, ErrEntryNotFound), "got %v", err)
}

func TestDirTreeCdIntoLeafFails(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.CreateEntry("leaf", false); err != nil {
		t.Fatal(err)
	}
	err := tree.ChangeDirectory("leaf")
	assert.True(t, errors.Is(err, ErrEntryNotFound), "got %v", err)
	assert.Equal(t, "/", tree.CurrentPath())
}

func TestDirTreeCreateDeleteInverse(t *testing.T) {
	tree := newTestTree(t)

	for _, name := range []string{"x", "y"} {
		if err := tree.CreateEntry(name, false); err != nil {
			t.Fatal(err)
		}
	}
	before, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}

	if err := tree.CreateEntry("tmp", false); err != nil {
		t.Fatal(err)
	}
	found, err := tree.DeleteEntry("tmp")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, found)

	// navigation drops the now-stale cached listing
	if err := tree.ChangeDirectory("/"); err != nil {
		t.Fatal(err)
	}
	after, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	beforeNames := entryNames(before)
	afterNames := entryNames(after)
	sort.Strings(beforeNames)
	sort.Strings(afterNames)
	assert.Equal(t, beforeNames, afterNames)
}

func TestDirTreeDeleteLeavesCachedListing(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.CreateEntry("tmp", false); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.ListEntries(); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.DeleteEntry("tmp"); err != nil {
		t.Fatal(err)
	}

	// the cached listing is stale until the cursor moves
	stale, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"tmp"}, entryNames(stale))

	if err := tree.ChangeDirectory("/"); err != nil {
		t.Fatal(err)
	}
	fresh, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, fresh)
}

func TestDirTreeChainGrowth(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "growth.dft")
	tree := NewDirTree(fileName)
	if err := tree.Init(); err != nil {
		t.Fatal(err)
	}

	// 120 names of 18 on-disk bytes each, well past one chunk's 1024 bytes
	count := 120
	for i := 0; i < count; i++ {
		if err := tree.CreateEntry(fmt.Sprintf("entry-%03d", i), false); err != nil {
			t.Fatalf("create entry %d: %v", i, err)
		}
	}

	entries, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, count, len(entries))

	size, err := tree.FileSize()
	if err != nil {
		t.Fatal(err)
	}
	assert.Greater(t, size, uint64(types.ChunkSize+14), "chain should span multiple chunks")

	if err := tree.Close(); err != nil {
		t.Fatal(err)
	}

	// chain walking after a cold reopen sees every entry
	reopened := NewDirTree(fileName)
	if err := reopened.Init(); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	entries, err = reopened.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != count {
		t.Fatalf("expected %d entries after reopen, got %d", count, len(entries))
	}
	for i, entry := range entries {
		assert.Equal(t, fmt.Sprintf("entry-%03d", i), entry.Name)
	}
}

func TestDirTreeAllocatorReusesOrphanedSpace(t *testing.T) {
	tree := newTestTree(t)

	// a directory's own chunk chain goes orphaned when its entry is deleted
	if err := tree.CreateEntry("trash", true); err != nil {
		t.Fatal(err)
	}
	sizeWithChild, err := tree.FileSize()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, uint64(2*(types.ChunkSize+14)), sizeWithChild)

	found, err := tree.DeleteEntry("trash")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, found)
	if err := tree.ChangeDirectory("/"); err != nil {
		t.Fatal(err)
	}

	// 104 on-disk bytes per entry: nine fit, the tenth forces a new chunk,
	// which must land in the orphaned range instead of growing the file
	base := strings.Repeat("f", 91)
	for i := 0; i < 10; i++ {
		if err := tree.CreateEntry(fmt.Sprintf("%s-%02d", base, i), false); err != nil {
			t.Fatalf("create entry %d: %v", i, err)
		}
	}

	entries, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 10, len(entries))

	size, err := tree.FileSize()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, sizeWithChild, size, "new chunk should reuse the orphaned range")
}

func TestDirTreeNewDirectoryStartsEmpty(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.CreateEntry("docs", true); err != nil {
		t.Fatal(err)
	}
	if err := tree.ChangeDirectory("docs"); err != nil {
		t.Fatal(err)
	}
	entries, err := tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, entries)

	if err := tree.CreateEntry("readme", false); err != nil {
		t.Fatal(err)
	}
	has, err := tree.HasEntry("readme")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, has)

	// the parent is untouched
	if err := tree.ChangeDirectory("/"); err != nil {
		t.Fatal(err)
	}
	entries, err = tree.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"docs"}, entryNames(entries))
}

func TestDirTreeDeepNesting(t *testing.T) {
	tree := newTestTree(t)

	depth := 8
	for i := 0; i < depth; i++ {
		name := fmt.Sprintf("level-%d", i)
		if err := tree.CreateEntry(name, true); err != nil {
			t.Fatal(err)
		}
		if err := tree.ChangeDirectory(name); err != nil {
			t.Fatal(err)
		}
	}
	assert.Equal(t, "/level-0/level-1/level-2/level-3/level-4/level-5/level-6/level-7", tree.CurrentPath())

	for i := depth - 1; i >= 0; i-- {
		if err := tree.ChangeDirectory(".."); err != nil {
			t.Fatalf("cd .. at depth %d: %v", i, err)
		}
	}
	assert.Equal(t, "/", tree.CurrentPath())
}

func TestDirTreeOnDiskLayout(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "layout.dft")
	tree := NewDirTree(fileName)
	if err := tree.Init(); err != nil {
		t.Fatal(err)
	}
	if err := tree.CreateEntry("ab", false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	// u32 region length | u16 entry count | u16 prefix | name | u64 pointer
	expected := []byte{
		0, 0, 4, 0, // region length 1024
		0, 1, // one entry
		0, 10, // prefix: 2 name bytes + 8
		'a', 'b',
		0, 0, 0, 0, 0, 0, 0, 0, // leaf pointer
	}
	assert.Equal(t, expected, raw[:len(expected)])
	assert.Equal(t, types.ChunkSize+14, len(raw))
}
