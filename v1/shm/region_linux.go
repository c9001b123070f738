//go:build linux

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Create allocates a new shared region of at least size bytes. The name
// is diagnostic only. The caller owns the region and should Close it
// with remove=true when the process group is done.
func Create(name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}
	path := regionPath(name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &Region{Mem: mem, Path: path, Name: name, file: f, size: size}, nil
}

// Open attaches to an existing region created by another process.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	size := int(st.Size())
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("shm: region %s is empty", path)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &Region{Mem: mem, Path: path, file: f, size: size}, nil
}

// Close unmaps the region and closes the backing file. When remove is
// true the backing file is unlinked as well; only the region's creator
// should pass true.
func (r *Region) Close(remove bool) error {
	var first error
	if r.Mem != nil {
		if err := unix.Munmap(r.Mem); err != nil && first == nil {
			first = fmt.Errorf("shm: munmap: %w", err)
		}
		r.Mem = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && first == nil {
			first = fmt.Errorf("shm: close: %w", err)
		}
		r.file = nil
	}
	if remove && r.Path != "" {
		if err := os.Remove(r.Path); err != nil && first == nil {
			first = fmt.Errorf("shm: remove: %w", err)
		}
	}
	return first
}
