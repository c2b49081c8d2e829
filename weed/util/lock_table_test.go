package util

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderedLock(t *testing.T) {
	lt := NewLockTable[string]()

	var wg sync.WaitGroup
	var exclusiveHolders, sharedHolders int32
	var violations int32
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "resource"
			lockType := SharedLock
			if i%5 == 0 {
				lockType = ExclusiveLock
			}

			lock := lt.AcquireLock("", key, lockType)

			if lockType == ExclusiveLock {
				if atomic.AddInt32(&exclusiveHolders, 1) != 1 || atomic.LoadInt32(&sharedHolders) != 0 {
					atomic.AddInt32(&violations, 1)
				}
			} else {
				atomic.AddInt32(&sharedHolders, 1)
				if atomic.LoadInt32(&exclusiveHolders) != 0 {
					atomic.AddInt32(&violations, 1)
				}
			}

			time.Sleep(time.Duration(rand.Int31n(5)) * time.Millisecond)

			if lockType == ExclusiveLock {
				atomic.AddInt32(&exclusiveHolders, -1)
			} else {
				atomic.AddInt32(&sharedHolders, -1)
			}
			lt.ReleaseLock(key, lock)
		}(i)
	}

	wg.Wait()
	assert.Equal(t, int32(0), violations)
	assert.Equal(t, 0, lt.Size())
}

func TestLockTableDifferentKeysDoNotBlock(t *testing.T) {
	lt := NewLockTable[uint64]()

	held := lt.AcquireLock("hold", 1, ExclusiveLock)

	done := make(chan struct{})
	go func() {
		l := lt.AcquireLock("other", 2, ExclusiveLock)
		lt.ReleaseLock(2, l)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock on key 2 blocked behind key 1")
	}
	lt.ReleaseLock(1, held)
	assert.Equal(t, 0, lt.Size())
}

func TestLockTableSharedWaitsForExclusive(t *testing.T) {
	lt := NewLockTable[string]()

	held := lt.AcquireLock("writer", "k", ExclusiveLock)
	acquired := make(chan struct{})
	go func() {
		l := lt.AcquireLock("reader", "k", SharedLock)
		close(acquired)
		lt.ReleaseLock("k", l)
	}()

	select {
	case <-acquired:
		t.Fatal("shared lock granted while exclusive lock held")
	case <-time.After(50 * time.Millisecond):
	}
	lt.ReleaseLock("k", held)
	<-acquired
}
