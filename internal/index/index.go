// Package index keeps track of the directories rbuild left on disk for a
// project, so they can be cleaned up after the configuration changed.
package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const IndexFilename = "rbuild_index.json"

// Entry is one directory kept between runs.
type Entry struct {
	Build    string    `json:"build"`
	Kind     string    `json:"kind"` // KindBuild, KindInstall or KindCheckout
	Hash     string    `json:"hash,omitempty"`
	Revision string    `json:"revision,omitempty"`
	Updated  time.Time `json:"updated"`
}

const (
	KindBuild    = "build"
	KindInstall  = "install"
	KindCheckout = "checkout"
)

type Index struct {
	basePath string
	// directory -> entry
	Dirs map[string]Entry
}

func New(basePath string) *Index {
	return &Index{basePath: basePath}
}

func ParseIndex(rdr io.Reader, basePath string) (*Index, error) {
	var dirs map[string]Entry
	if err := json.NewDecoder(bufio.NewReader(rdr)).Decode(&dirs); err != nil {
		return nil, err
	}
	return &Index{Dirs: dirs, basePath: basePath}, nil
}

// Load reads the index in basePath. A missing file is an empty index.
func Load(basePath string) (*Index, error) {
	f, err := os.Open(filepath.Join(basePath, IndexFilename))
	if errors.Is(err, os.ErrNotExist) {
		return New(basePath), nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseIndex(f, basePath)
}

func (idx *Index) Save() error {
	path := filepath.Join(idx.basePath, IndexFilename)
	if len(idx.Dirs) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(idx.Dirs); err != nil {
		return err
	}
	return bufw.Flush()
}

func (idx *Index) Set(dir string, e Entry) {
	if idx.Dirs == nil {
		idx.Dirs = make(map[string]Entry)
	}
	if e.Updated.IsZero() {
		e.Updated = time.Now().UTC()
	}
	idx.Dirs[dir] = e
}

func (idx *Index) Remove(dir string) bool {
	if _, ok := idx.Dirs[dir]; ok {
		delete(idx.Dirs, dir)
		return true
	}
	return false
}

// Sorted returns the recorded directories in order.
func (idx *Index) Sorted() []string {
	dirs := make([]string, 0, len(idx.Dirs))
	for dir := range idx.Dirs {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return dirs
}

// Filter returns the recorded directories belonging to the given builds, or
// all of them when builds is empty.
func (idx *Index) Filter(builds []string) []string {
	var dirs []string
	for _, dir := range idx.Sorted() {
		if len(builds) == 0 || slices.Contains(builds, idx.Dirs[dir].Build) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
