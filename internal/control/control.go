// Package control coordinates lenstree processes that manage the same
// files. A small memory-mapped block holds a save generation; writers take
// an exclusive lock on it while saving and bump the generation afterwards
// so long-running readers know their tree is stale.
package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	BlockSize = 4096       // 1 page
	Magic     = 0x4C4E5354 // 'LNST'
	version   = 1
)

// Block is the layout of the mapped control file.
type Block struct {
	Magic      uint32
	Version    uint32
	Generation uint64 // atomic
	SavedAt    int64  // unix nanos of the last bump, atomic
	Padding    [BlockSize - 24]byte
}

// ErrBadMagic means the file exists but was not written by lenstree.
var ErrBadMagic = errors.New("not a control file")

// Controller is an open control file.
type Controller struct {
	path string
	file *os.File
	data []byte
	ptr  *Block
}

// OpenOrCreate maps the control file at path, creating it when missing.
func OpenOrCreate(path string) (*Controller, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open control file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() < BlockSize {
		if err := f.Truncate(BlockSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, BlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}
	ptr := (*Block)(unsafe.Pointer(&data[0]))

	switch ptr.Magic {
	case 0:
		ptr.Magic = Magic
		ptr.Version = version
	case Magic:
	default:
		magic := ptr.Magic
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w (magic %x)", path, ErrBadMagic, magic)
	}
	return &Controller{path: path, file: f, data: data, ptr: ptr}, nil
}

// Path returns the file the controller maps.
func (c *Controller) Path() string { return c.path }

// Generation returns the number of saves recorded so far.
func (c *Controller) Generation() uint64 {
	return atomic.LoadUint64(&c.ptr.Generation)
}

// SavedAt returns when the generation was last bumped.
func (c *Controller) SavedAt() time.Time {
	ns := atomic.LoadInt64(&c.ptr.SavedAt)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Bump records a completed save and returns the new generation.
func (c *Controller) Bump(at time.Time) uint64 {
	atomic.StoreInt64(&c.ptr.SavedAt, at.UnixNano())
	return atomic.AddUint64(&c.ptr.Generation, 1)
}

// Lock takes the exclusive save lock, polling until ctx is done.
func (c *Controller) Lock(ctx context.Context) error {
	for {
		err := unix.Flock(int(c.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("lock %s: %w", c.path, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Unlock releases the save lock.
func (c *Controller) Unlock() error {
	return unix.Flock(int(c.file.Fd()), unix.LOCK_UN)
}

// Close unmaps and closes the control file.
func (c *Controller) Close() error {
	if err := unix.Munmap(c.data); err != nil {
		return err
	}
	return c.file.Close()
}
