package scanner

import (
	"os"
	"sync"
)

// fileCache keeps a bounded number of blk*.dat or rev*.dat handles open,
// keyed by file index, evicting the oldest-opened entry once the bound is
// reached. It is a non-semantic optimization: callers could equally well
// open a fresh handle per read. Handles are read via ReadAt, which does
// not move a shared cursor, so a cached *os.File is safe to read from
// multiple goroutines concurrently -- but only under this engine's
// single-owner model, where nothing calls Close on a file still being
// read. get itself can Close an evicted handle while another goroutine's
// ReadAt against it is in flight; that race is not guarded against here.
type fileCache struct {
	mu     sync.Mutex
	dir    string
	prefix string
	max    int
	order  []uint32
	files  map[uint32]*os.File
	closed bool
}

func newFileCache(dataDir, prefix string, max int) *fileCache {
	if max <= 0 {
		max = 8
	}
	return &fileCache{
		dir:    dataDir,
		prefix: prefix,
		max:    max,
		files:  make(map[uint32]*os.File),
	}
}

func (c *fileCache) get(n uint32) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, os.ErrClosed
	}
	if f, ok := c.files[n]; ok {
		return f, nil
	}

	path := flatFilePath(c.dir, c.prefix, n)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		if old, ok := c.files[oldest]; ok {
			old.Close()
			delete(c.files, oldest)
		}
	}
	c.files[n] = f
	c.order = append(c.order, n)
	return f, nil
}

func (c *fileCache) closeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for n, f := range c.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.files, n)
	}
	c.order = nil
	c.closed = true
	return first
}
