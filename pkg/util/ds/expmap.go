// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package ds

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// an ExpMap has "expiring" keys. expired keys are dropped lazily on Get and
// handed back to the caller by Sweep.

type ExpMap[T any] struct {
	lock    *sync.Mutex
	expHeap *binaryheap.Heap // heap of expEntries (sorted by time)
	m       map[string]expMapEntry[T]
	nowFn   func() time.Time
}

type expMapEntry[T any] struct {
	Val T
	Exp time.Time
}

type expEntry struct {
	Key string
	Exp time.Time
}

type ExpiredEntry[T any] struct {
	Key string
	Val T
}

func heapComparator(aArg, bArg any) int {
	a := aArg.(expEntry)
	b := bArg.(expEntry)
	if a.Exp.Before(b.Exp) {
		return -1
	} else if a.Exp.After(b.Exp) {
		return 1
	}
	return 0
}

func MakeExpMap[T any]() *ExpMap[T] {
	return &ExpMap[T]{
		lock:    &sync.Mutex{},
		expHeap: binaryheap.NewWith(heapComparator),
		m:       make(map[string]expMapEntry[T]),
		nowFn:   time.Now,
	}
}

func (em *ExpMap[T]) Set(key string, value T, exp time.Time) {
	em.lock.Lock()
	defer em.lock.Unlock()
	oldEntry, ok := em.m[key]
	em.m[key] = expMapEntry[T]{Val: value, Exp: exp}
	if !ok || oldEntry.Exp != exp {
		em.expHeap.Push(expEntry{Key: key, Exp: exp}) // this might create duplicates.  that's ok.
	}
}

// should already hold the lock
func (em *ExpMap[T]) expireItems_nolock() []ExpiredEntry[T] {
	var rtn []ExpiredEntry[T]
	now := em.nowFn()
	for !em.expHeap.Empty() {
		topI, _ := em.expHeap.Peek()
		top := topI.(expEntry)
		if top.Exp.After(now) {
			break
		}
		em.expHeap.Pop()
		entry, ok := em.m[top.Key]
		// stale heap entries (key re-set with a later exp, or deleted) are skipped
		if ok && !entry.Exp.After(now) {
			delete(em.m, top.Key)
			rtn = append(rtn, ExpiredEntry[T]{Key: top.Key, Val: entry.Val})
		}
	}
	return rtn
}

func (em *ExpMap[T]) Get(key string) (T, bool) {
	em.lock.Lock()
	defer em.lock.Unlock()
	em.expireItems_nolock()
	v, ok := em.m[key]
	return v.Val, ok
}

// Take removes key and returns its value if it has not expired.
func (em *ExpMap[T]) Take(key string) (T, bool) {
	em.lock.Lock()
	defer em.lock.Unlock()
	em.expireItems_nolock()
	v, ok := em.m[key]
	if ok {
		delete(em.m, key)
	}
	return v.Val, ok
}

func (em *ExpMap[T]) Delete(key string) {
	em.lock.Lock()
	defer em.lock.Unlock()
	delete(em.m, key)
}

// Sweep drops every expired key and returns what was dropped, oldest first.
func (em *ExpMap[T]) Sweep() []ExpiredEntry[T] {
	em.lock.Lock()
	defer em.lock.Unlock()
	return em.expireItems_nolock()
}

func (em *ExpMap[T]) Len() int {
	em.lock.Lock()
	defer em.lock.Unlock()
	return len(em.m)
}
