// Package buckethash implements the sharded, lock-striped fingerprint
// directory spec.md §4.1 calls BucketHash: a fixed array of buckets, each
// guarded by its own mutex, holding a sorted list of entries so a lookup can
// early-terminate. There is no analog of this in the teacher repo (its
// BackendRegistry is a flat map behind one mutex); this package is built
// from spec.md's invariants directly, in the teacher's terse, low-doc style.
package buckethash

import (
	"bytes"
	"hash/crc32"
	"sync"
)

// ObjHead is the per-fingerprint value the hash directory hands out. The
// core never interprets Payload; it only manages the entry's lifecycle
// (existence + refcount) around it.
type ObjHead struct {
	Payload any

	entry *entry // back-pointer, set at insert time
}

type entry struct {
	klen    int
	digest  uint32
	key     []byte
	refcnt  int32
	head    *ObjHead
	bucket  *bucket // back-link, for O(1) remove validation
	next    *entry
}

// less implements the total (klen, digest, bytewise-key) order spec.md §4.1
// requires for the sorted per-bucket list.
func less(klen int, digest uint32, key []byte, e *entry) bool {
	if klen != e.klen {
		return klen < e.klen
	}
	if digest != e.digest {
		return digest < e.digest
	}
	return bytes.Compare(key, e.key) < 0
}

func equal(klen int, digest uint32, key []byte, e *entry) bool {
	return klen == e.klen && digest == e.digest && bytes.Equal(key, e.key)
}

type bucket struct {
	mu   sync.Mutex
	head *entry
}

// BucketHash is the sharded fingerprint -> ObjHead directory.
type BucketHash struct {
	buckets []bucket
	n       uint32
}

// New creates a BucketHash with n buckets, n >= 3. Per spec.md §4.1 and §6,
// if the requested n is a power of two and > 2, it is silently reduced by
// one: powers of two collide badly with systematic URLs that differ only in
// a low bit, because crc32(fp) mod 2^k only ever looks at the low k bits.
func New(n int) *BucketHash {
	if n < 3 {
		n = 3
	}
	if isPowerOfTwo(n) && n > 2 {
		n--
	}
	return &BucketHash{buckets: make([]bucket, n), n: uint32(n)}
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// NumBuckets reports the effective bucket count after any power-of-two
// adjustment, mostly for tests.
func (h *BucketHash) NumBuckets() int { return int(h.n) }

func digestOf(fp []byte) uint32 { return crc32.ChecksumIEEE(fp) }

func (h *BucketHash) bucketFor(digest uint32) *bucket {
	return &h.buckets[digest%h.n]
}

// Lookup implements the pure-lookup form: returns the stored ObjHead (with
// its refcount incremented) if fp is present, else (nil, false). It never
// inserts.
func (h *BucketHash) Lookup(fp []byte) (*ObjHead, bool) {
	digest := digestOf(fp)
	b := h.bucketFor(digest)
	klen := len(fp)

	b.mu.Lock()
	defer b.mu.Unlock()
	e := walk(b, klen, digest, fp)
	if e == nil {
		return nil, false
	}
	e.refcnt++
	return e.head, true
}

// walk scans a bucket's sorted list for (klen, digest, fp), early-terminating
// once the current entry sorts strictly after the search key. Caller must
// hold b.mu.
func walk(b *bucket, klen int, digest uint32, fp []byte) *entry {
	for e := b.head; e != nil; e = e.next {
		if equal(klen, digest, fp, e) {
			return e
		}
		if !less(klen, digest, fp, e) {
			// e < search key, keep walking
			continue
		}
		// e > search key: sorted list means nothing further can match
		return nil
	}
	return nil
}

// insertSorted links e into b's list at its sorted position. Caller must
// hold b.mu.
func insertSorted(b *bucket, e *entry) {
	if b.head == nil || less(e.klen, e.digest, e.key, b.head) {
		e.next = b.head
		b.head = e
		return
	}
	prev := b.head
	for prev.next != nil && !less(e.klen, e.digest, e.key, prev.next) {
		prev = prev.next
	}
	e.next = prev.next
	prev.next = e
}

func unlink(b *bucket, target *entry) {
	if b.head == target {
		b.head = target.next
		return
	}
	for e := b.head; e != nil; e = e.next {
		if e.next == target {
			e.next = target.next
			return
		}
	}
}

// LookupOrInsert implements spec.md §4.1's lookup_or_insert_candidate: if fp
// is already present, its ObjHead is returned (refcount+1) and candidate is
// discarded (the caller is expected to free/ignore it — candidate ownership
// transfers to this call). If fp is absent, candidate becomes the new
// ObjHead, refcount=1. The two-pass rule: the caller's candidate is built
// outside any lock (by the caller, before calling this), so between the
// first probe and the insert another goroutine may have raced in; this
// function's second pass catches that without any lock ever being held
// across allocation.
func (h *BucketHash) LookupOrInsert(fp []byte, candidate any) *ObjHead {
	digest := digestOf(fp)
	b := h.bucketFor(digest)
	klen := len(fp)

	b.mu.Lock()
	if e := walk(b, klen, digest, fp); e != nil {
		e.refcnt++
		b.mu.Unlock()
		return e.head
	}
	b.mu.Unlock()

	// Build the candidate's entry outside the lock (spec.md's "allocate a
	// new entry carrying a copy of the fingerprint" step).
	keyCopy := make([]byte, klen)
	copy(keyCopy, fp)
	head := &ObjHead{Payload: candidate}
	e := &entry{klen: klen, digest: digest, key: keyCopy, refcnt: 1, head: head, bucket: b}
	head.entry = e

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing := walk(b, klen, digest, fp); existing != nil {
		// Lost the race: someone inserted fp while we were allocating.
		existing.refcnt++
		return existing.head
	}
	insertSorted(b, e)
	return head
}

// Deref decrements oh's refcount. If it reaches zero the entry is unlinked
// from its bucket and discarded. Returns true iff this call removed the
// last reference.
func (h *BucketHash) Deref(oh *ObjHead) bool {
	e := oh.entry
	b := e.bucket

	b.mu.Lock()
	defer b.mu.Unlock()
	e.refcnt--
	if e.refcnt > 0 {
		return false
	}
	unlink(b, e)
	return true
}

// Refcount reports an ObjHead's current refcount, for tests and assertions.
func (h *BucketHash) Refcount(oh *ObjHead) int32 {
	e := oh.entry
	b := e.bucket
	b.mu.Lock()
	defer b.mu.Unlock()
	return e.refcnt
}
