//go:build linux

package lock

import (
	"context"
	"encoding/binary"
	"fmt"
	"unsafe"

	uuid "github.com/hashicorp/go-uuid"
	"golang.org/x/sys/unix"

	shmerrors "github.com/mirkobrombin/go-shmlock/v1/errors"
)

// System V semaphores are kernel-persistent and system-global: the set
// survives process exit unless removed, and keys collide with unrelated
// programs on the host. Creation therefore probes random keys with
// IPC_CREAT|IPC_EXCL, and deinit must IPC_RMID the set.

const semCtlSetVal = 16 // SETVAL

type sembuf struct {
	num uint16
	op  int16
	flg int16
}

func semget(key int32, nsems, flag int) (int32, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flag))
	if errno != 0 {
		return 0, errno
	}
	return int32(id), nil
}

func semop(id int32, op int16) error {
	sb := sembuf{num: 0, op: op, flg: 0}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(id), uintptr(unsafe.Pointer(&sb)), 1)
	if errno != 0 {
		return fmt.Errorf("lock: semop: %w", errno)
	}
	return nil
}

func semctl(id int32, cmd, val int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, uintptr(cmd), uintptr(val), 0, 0)
	if errno != 0 {
		return fmt.Errorf("lock: semctl: %w", errno)
	}
	return nil
}

func randomSysvKey() (int32, error) {
	b, err := uuid.GenerateRandomBytes(4)
	if err != nil {
		return 0, fmt.Errorf("lock: sysv key: %w", err)
	}
	key := int32(binary.LittleEndian.Uint32(b) & 0x7fffffff)
	if key == 0 {
		key = 1
	}
	return key, nil
}

type sysvBackend struct {
	attempts int
}

func newSysvBackend(attempts int) backend {
	if attempts <= 0 {
		attempts = defaultSysvKeyAttempts
	}
	return &sysvBackend{attempts: attempts}
}

func (*sysvBackend) kind() Kind { return KindSysvSem }

func (b *sysvBackend) probe() error { return probeScratch(b) }

func (b *sysvBackend) init(s *slot) error {
	for i := 0; i < b.attempts; i++ {
		key, err := randomSysvKey()
		if err != nil {
			return err
		}
		id, err := semget(key, 1, unix.IPC_CREAT|unix.IPC_EXCL|0o600)
		if err == unix.EEXIST {
			continue
		}
		if err != nil {
			return fmt.Errorf("lock: semget: %w", err)
		}
		if err := semctl(id, semCtlSetVal, 1); err != nil {
			_ = semctl(id, unix.IPC_RMID, 0)
			return err
		}
		s.semid = id
		s.semkey = key
		return nil
	}
	return fmt.Errorf("no unused semaphore key after %d attempts: %w", b.attempts, shmerrors.ErrExhausted)
}

func (*sysvBackend) deinit(s *slot) error {
	// Without the explicit remove the set leaks past process exit.
	err := semctl(s.semid, unix.IPC_RMID, 0)
	s.semid = 0
	s.semkey = 0
	return err
}

func (*sysvBackend) acquire(ctx context.Context, s *slot) error {
	return semop(s.semid, -1)
}

func (b *sysvBackend) acquireRelax(ctx context.Context, s *slot) error {
	return b.acquire(ctx, s)
}

func (*sysvBackend) release(s *slot) error {
	return semop(s.semid, 1)
}
