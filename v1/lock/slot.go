package lock

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Arena layout: one header followed by capacity+1 slots, slot 0 being the
// meta-lock. Header and slots are padded to the cache line so that two
// processes hammering different slots never share a line.

const (
	arenaMagic   = 0x314b434c4d4853 // "SHMLCK1"
	arenaVersion = 1

	// slotFree marks an unallocated slot. The in-use marker is a
	// distinctive sentinel rather than 1 so that stray writes are
	// unlikely to fabricate a valid-looking slot; the generation check
	// in the handle is the authoritative defense.
	slotFree  = 0
	slotInUse = 0xa110c8ed
)

type header struct {
	magic    uint64
	version  uint32
	capacity uint32
	kind     uint32
	_        uint32
	_        cpu.CacheLinePad
}

// slot is one arena entry. word holds the active backend's state: the
// test-and-set flag for spinlocks, the Drepper mutex state for futex, the
// counter for semaphores, the owner TID for PI. semid/semkey are used only
// by the System V backend; aux is reserved.
type slot struct {
	marker uint32
	gen    uint32
	word   uint32
	aux    uint32
	semid  int32
	semkey int32
	_      cpu.CacheLinePad
}

var (
	headerSize = unsafe.Sizeof(header{})
	slotSize   = unsafe.Sizeof(slot{})
)

// arenaBytes returns the mapping size needed for capacity usable slots
// plus the meta-lock.
func arenaBytes(capacity int) int {
	return int(headerSize) + (capacity+1)*int(slotSize)
}

func headerAt(mem []byte) *header {
	return (*header)(unsafe.Pointer(&mem[0]))
}

func slotAt(mem []byte, i uint32) *slot {
	return (*slot)(unsafe.Add(unsafe.Pointer(&mem[0]), headerSize+uintptr(i)*slotSize))
}

// reset returns the slot to its free state. The generation survives so
// that handles minted before the reset stay invalid forever.
func (s *slot) reset() {
	atomic.StoreUint32(&s.word, 0)
	atomic.StoreUint32(&s.aux, 0)
	atomic.StoreInt32(&s.semid, 0)
	atomic.StoreInt32(&s.semkey, 0)
	atomic.StoreUint32(&s.marker, slotFree)
}

func (s *slot) inUse() bool {
	return atomic.LoadUint32(&s.marker) == slotInUse
}
