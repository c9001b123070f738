//go:build linux

package lock

import (
	"context"
	"fmt"
	"io"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fcntlBackend takes a blocking open-file-description record lock on the
// slot's byte range of the arena file. It is the portable fallback: no
// shared-word protocol at all, just the kernel's file lock table.
//
// OFD locks belong to the open file description, so this backend excludes
// processes from one another but not goroutines sharing the same mapped
// descriptor.
type fcntlBackend struct {
	p *Pool
}

func newFcntlBackend(p *Pool) backend { return &fcntlBackend{p: p} }

func (*fcntlBackend) kind() Kind { return KindFcntl }

func (b *fcntlBackend) probe() error {
	if b.p.region == nil || b.p.region.File() == nil {
		return fmt.Errorf("lock: fcntl backend needs a file-backed arena")
	}
	flk := unix.Flock_t{Type: unix.F_WRLCK, Whence: io.SeekStart, Start: 0, Len: 1}
	if err := unix.FcntlFlock(b.p.region.File().Fd(), unix.F_OFD_GETLK, &flk); err != nil {
		return fmt.Errorf("lock: ofd locks unsupported: %w", err)
	}
	return nil
}

func (b *fcntlBackend) offset(s *slot) int64 {
	return int64(uintptr(unsafe.Pointer(s)) - uintptr(unsafe.Pointer(&b.p.mem[0])))
}

func (*fcntlBackend) init(s *slot) error   { return nil }
func (*fcntlBackend) deinit(s *slot) error { return nil }

func (b *fcntlBackend) acquire(ctx context.Context, s *slot) error {
	flk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
		Start:  b.offset(s),
		Len:    int64(slotSize),
	}
	if err := unix.FcntlFlock(b.p.region.File().Fd(), unix.F_OFD_SETLKW, &flk); err != nil {
		return fmt.Errorf("lock: fcntl acquire: %w", err)
	}
	return nil
}

func (b *fcntlBackend) acquireRelax(ctx context.Context, s *slot) error {
	return b.acquire(ctx, s)
}

func (b *fcntlBackend) release(s *slot) error {
	flk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: io.SeekStart,
		Start:  b.offset(s),
		Len:    int64(slotSize),
	}
	if err := unix.FcntlFlock(b.p.region.File().Fd(), unix.F_OFD_SETLK, &flk); err != nil {
		return fmt.Errorf("lock: fcntl release: %w", err)
	}
	return nil
}
