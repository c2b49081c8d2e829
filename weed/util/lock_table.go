package util

import (
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// LockTable is a table of locks that can be acquired.
// Locks are acquired in order of request.
type LockTable[T comparable] struct {
	mu        sync.Mutex
	locks     map[T]*LockEntry
	lockIdSeq int64
}

type LockEntry struct {
	mu                   sync.Mutex
	waiters              []*ActiveLock // ordered waiters that are blocked by incompatible locks
	activeLockOwnerCount int32
	refCount             int32 // waiters and owners, guarded by LockTable.mu
	lockType             LockType
	cond                 *sync.Cond
}

type LockType int

const (
	SharedLock LockType = iota
	ExclusiveLock
)

func (lockType LockType) String() string {
	if lockType == ExclusiveLock {
		return "exclusive"
	}
	return "shared"
}

type ActiveLock struct {
	ID        int64
	lockType  LockType
	intention string // for debugging
}

func NewLockTable[T comparable]() *LockTable[T] {
	return &LockTable[T]{
		locks: make(map[T]*LockEntry),
	}
}

func (lt *LockTable[T]) NewActiveLock(intention string, lockType LockType) *ActiveLock {
	id := atomic.AddInt64(&lt.lockIdSeq, 1)
	l := &ActiveLock{ID: id, intention: intention, lockType: lockType}
	return l
}

func (lt *LockTable[T]) AcquireLock(intention string, key T, lockType LockType) (lock *ActiveLock) {
	lt.mu.Lock()
	// Get or create the lock entry for the key
	entry, exists := lt.locks[key]
	if !exists {
		entry = &LockEntry{}
		entry.cond = sync.NewCond(&entry.mu)
		lt.locks[key] = entry
	}
	entry.refCount++
	lt.mu.Unlock()

	lock = lt.NewActiveLock(intention, lockType)

	entry.mu.Lock()
	entry.waiters = append(entry.waiters, lock)
	for !entry.grantable(lock) {
		glog.V(4).Infof("ActiveLock %d %s wait for %+v type=%v with waiters %d active %d", lock.ID, lock.intention, key, lockType, len(entry.waiters), entry.activeLockOwnerCount)
		entry.cond.Wait()
	}
	entry.waiters = entry.waiters[1:]
	entry.activeLockOwnerCount++
	entry.lockType = lockType
	// a shared lock may let the next shared waiter in
	entry.cond.Broadcast()
	glog.V(4).Infof("ActiveLock %d %s locked %+v type=%v with waiters %d active %d", lock.ID, lock.intention, key, lockType, len(entry.waiters), entry.activeLockOwnerCount)
	entry.mu.Unlock()

	return lock
}

// grantable must be called with entry.mu held.
func (entry *LockEntry) grantable(lock *ActiveLock) bool {
	if len(entry.waiters) == 0 || entry.waiters[0].ID != lock.ID {
		return false
	}
	if entry.activeLockOwnerCount == 0 {
		return true
	}
	return lock.lockType == SharedLock && entry.lockType == SharedLock
}

func (lt *LockTable[T]) ReleaseLock(key T, lock *ActiveLock) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	entry, exists := lt.locks[key]
	if !exists {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.activeLockOwnerCount--
	entry.refCount--
	if entry.refCount == 0 {
		delete(lt.locks, key)
	}

	glog.V(4).Infof("ActiveLock %d %s unlocked %+v type=%v with waiters %d active %d", lock.ID, lock.intention, key, lock.lockType, len(entry.waiters), entry.activeLockOwnerCount)

	// Notify the next waiter
	entry.cond.Broadcast()
}

// Size is the number of keys that currently have owners or waiters.
func (lt *LockTable[T]) Size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.locks)
}
