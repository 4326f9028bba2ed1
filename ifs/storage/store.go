package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/indexfs/indexfs/ifs/storage/metaindex"
	"github.com/indexfs/indexfs/ifs/util"
)

// StoreOptions names the two files an IndexedStore lives in.
type StoreOptions struct {
	TreeFileName string
	MetaFileName string
}

// IndexedStore pairs the directory tree with the content-addressed meta
// index: the tree holds the namespace, the index maps full path ids to
// (fileId, offset) data locations.
type IndexedStore struct {
	tree         *DirTree
	meta         *metaindex.MetaIndex
	metaFileName string
}

func NewIndexedStore(options StoreOptions) (*IndexedStore, error) {
	tree := NewDirTree(options.TreeFileName)
	if err := tree.Init(); err != nil {
		return nil, err
	}

	meta := metaindex.NewMetaIndex()
	if util.FileExists(options.MetaFileName) {
		f, err := os.Open(options.MetaFileName)
		if err != nil {
			return nil, fmt.Errorf("open meta index file %s: %v", options.MetaFileName, err)
		}
		meta, err = metaindex.LoadMetaIndex(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		glog.V(1).Infof("loaded meta index %s with %d entries", options.MetaFileName, meta.Len())
	}

	return &IndexedStore{
		tree:         tree,
		meta:         meta,
		metaFileName: options.MetaFileName,
	}, nil
}

// NewIndexedStoreFromConfig builds the store from a viper-backed
// configuration, typically loaded with util.LoadConfiguration.
func NewIndexedStoreFromConfig(config util.Configuration) (*IndexedStore, error) {
	config.SetDefault("store.dir", ".")
	config.SetDefault("store.tree_file", "index.dft")
	config.SetDefault("store.meta_file", "index.meta")
	dir := config.GetString("store.dir")
	return NewIndexedStore(StoreOptions{
		TreeFileName: filepath.Join(dir, config.GetString("store.tree_file")),
		MetaFileName: filepath.Join(dir, config.GetString("store.meta_file")),
	})
}

func (s *IndexedStore) Tree() *DirTree {
	return s.tree
}

func (s *IndexedStore) Meta() *metaindex.MetaIndex {
	return s.meta
}

// AddFileLocation creates the leaf entry at `path` (parent directories must
// already exist) and records where its content lives. The full path string
// is the index id.
func (s *IndexedStore) AddFileLocation(path string, fileId uint32, offset uint64) error {
	parent, name, err := splitEntryPath(path)
	if err != nil {
		return err
	}
	if err := s.tree.ChangeDirectory(parent); err != nil {
		return err
	}
	if err := s.tree.CreateEntry(name, false); err != nil {
		return err
	}
	s.meta.Add(path, fileId, offset)
	return nil
}

func (s *IndexedStore) LookupFileLocation(path string) (metaindex.MetaEntry, bool) {
	return s.meta.Lookup(path)
}

// RemoveFileLocation deletes the tree entry and its index record, reporting
// whether the entry existed.
func (s *IndexedStore) RemoveFileLocation(path string) (bool, error) {
	parent, name, err := splitEntryPath(path)
	if err != nil {
		return false, err
	}
	if err := s.tree.ChangeDirectory(parent); err != nil {
		return false, err
	}
	found, err := s.tree.DeleteEntry(name)
	if err != nil {
		return false, err
	}
	if found {
		s.meta.Remove(path)
	}
	return found, nil
}

// Flush persists the meta index. The tree file is synced on every mutation
// and needs no flushing here.
func (s *IndexedStore) Flush() error {
	f, err := os.OpenFile(s.metaFileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open meta index file %s: %v", s.metaFileName, err)
	}
	defer f.Close()
	if err := s.meta.Write(f); err != nil {
		return err
	}
	return f.Sync()
}

func (s *IndexedStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.tree.Close()
}

func splitEntryPath(path string) (parent string, name string, err error) {
	if !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("%w: path %q is not absolute", ErrInvalidEntry, path)
	}
	trimmed := strings.TrimSuffix(path, "/")
	i := strings.LastIndex(trimmed, "/")
	name = trimmed[i+1:]
	if len(name) == 0 {
		return "", "", fmt.Errorf("%w: path %q has no entry name", ErrInvalidEntry, path)
	}
	parent = trimmed[:i]
	if parent == "" {
		parent = "/"
	}
	return parent, name, nil
}
