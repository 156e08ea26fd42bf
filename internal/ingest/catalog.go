package ingest

import (
	"sort"

	"github.com/agentic-research/lenstree/internal/lens"
)

// File is a managed file as it was last read from or written to disk.
type File struct {
	Path      string
	Transform string
	Lens      string
	Text      string
	Skeleton  *lens.Skeleton
}

// Catalog indexes the managed files by path.
type Catalog struct {
	files map[string]*File
}

func NewCatalog() *Catalog {
	return &Catalog{files: make(map[string]*File)}
}

func (c *Catalog) Get(path string) (*File, bool) {
	f, ok := c.files[path]
	return f, ok
}

func (c *Catalog) Put(f *File) { c.files[f.Path] = f }

func (c *Catalog) Delete(path string) { delete(c.files, path) }

func (c *Catalog) Len() int { return len(c.files) }

// Paths returns the managed paths in sorted order.
func (c *Catalog) Paths() []string {
	out := make([]string, 0, len(c.files))
	for p := range c.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
