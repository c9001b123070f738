package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Region is one shared memory mapping. Every process that creates or
// opens the same path sees the same bytes.
type Region struct {
	// Mem is the mapped memory, exactly the requested size.
	Mem []byte

	// Path is the backing file, used by other processes to attach and by
	// the fcntl lock backend for record locks.
	Path string

	// Name is the advisory label the region was created with. It has no
	// functional effect; it only makes the mapping identifiable in
	// diagnostics and in /dev/shm listings.
	Name string

	file *os.File
	size int
}

// baseDir is where region files are created. tmpfs keeps the backing
// pages in memory.
const baseDir = "/dev/shm"

func regionPath(name string) string {
	if name == "" {
		name = "anon"
	}
	return filepath.Join(baseDir, fmt.Sprintf("go-shmlock-%s-%s", name, uuid.NewString()))
}

// Size returns the usable size of the region in bytes.
func (r *Region) Size() int {
	return r.size
}

// File exposes the backing file descriptor for backends that lock byte
// ranges of the region.
func (r *Region) File() *os.File {
	return r.file
}
