// Package lock implements a cross-process lock manager backed by a shared
// memory arena. A Pool is a fixed-capacity array of lock slots mapped into
// every cooperating process; slot 0 is the pool's own meta-lock and
// serializes allocation bookkeeping. Locks are referenced by generation
// counted handles, which are plain values and may be passed freely between
// processes that attached the same pool.
//
// The synchronization mechanism behind a pool is one of several backends
// (atomic spinlock, futex mutex, priority-inheriting futex, futex
// semaphore, System V semaphore, fcntl record lock), selected once at Map
// time by probing an explicit priority chain or pinned with WithBackend.
// A pool never switches backends while mapped.
package lock
