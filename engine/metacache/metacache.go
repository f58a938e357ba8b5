// Package metacache implements the Metadata Cache of spec.md §4.5: a
// process-wide cache of ArrowFileState keyed by (device, inode), bounded by
// a budget counted in fixed-size blocks (each entry's estimated footprint
// rounded up to whole blocks, see blocksFor), with reclaim O(1) per
// candidate. The cached ArrowFileState values are ordinary heap objects;
// the slot arena holds pointers to them.
//
// The hash-bucket table, global LRU, and RWMutex-guarded structural
// changes follow an RWMutex-plus-intrusive-doubly-linked-list design:
// a fixed-size slot arena, sentinel head/tail LRU pointers, and
// AddToFront/MoveToFront/RemoveOldest operations over slot indices
// rather than heap pointers. The block size, bucket count, and reclaim
// threshold (ARROW_METADATA_BLOCKSZ = 128 KiB, ARROW_METADATA_HASH_NSLOTS
// = 2000) are carried verbatim from the pg-strom arrow_fdw.c reference
// this engine distills.
//
// Entries are reached through a generation-counted Handle (slot index +
// generation, defined below) rather than a raw pointer or map key held
// by the caller, so a stale handle into a reclaimed slot is detected
// rather than silently aliasing new data.
package metacache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/minio/highwayhash"

	"github.com/scrapbird/arrowfdw/engine/types"
)

// BlockSize is the arena allocation granularity, matching
// ARROW_METADATA_BLOCKSZ in the reference implementation.
const BlockSize = 128 * 1024

// NumSlots is the hash bucket count, matching ARROW_METADATA_HASH_NSLOTS.
const NumSlots = 2000

// ReclaimThreshold is the minimum idle duration (time since last access)
// before Reclaim() will consider evicting an entry, matching the
// reference implementation's 30-second window.
const ReclaimThreshold = 30 * time.Second

// highwayKey is a fixed, process-local key for the hash used to route
// (device, inode) pairs into buckets. It only needs to be stable for the
// lifetime of one process, never shared or persisted, so a fixed key is
// sufficient (no adversarial-input concern: cache routing, not auth).
var highwayKey = make([]byte, 32)

// Handle addresses one cached entry. Generation distinguishes a live
// entry from a reclaimed slot that has since been reused: a Handle whose
// Generation doesn't match the slot's current generation is stale.
type Handle struct {
	slot       int
	generation uint64
}

type entry struct {
	generation uint64
	inUse      bool

	device uint64
	inode  uint64
	stat   types.FileStat

	file *types.ArrowFileState

	lastAccess int64 // unix nanos, read/written via atomic

	hashNext, hashPrev int // slot indices, -1 for none
	lruNext, lruPrev   int // slot indices, -1 for none
}

// Cache is the process-wide metadata cache. One Cache should be
// constructed per postmaster-equivalent process lifetime and shared by
// every Scan Driver, matching the reference's single static cache.
type Cache struct {
	// mu guards structural changes: slot allocation/free, hash bucket
	// membership, slice growth. Acquired before spin, never the reverse,
	// so lookups that only touch the LRU ordering don't starve writers.
	mu sync.RWMutex

	// spin guards LRU list pointer rewiring only (MoveToFront on a hit).
	// A spinlock is appropriate here because the critical section is a
	// handful of pointer assignments with no I/O and no allocation.
	spin spinlock

	slots     []entry
	freeList  []int // slot indices available for reuse
	hashHeads [NumSlots]int

	lruHead, lruTail int // slot indices, -1 for empty list

	capacityBlocks int64
	usedBlocks     int64
}

// New creates a Cache sized to hold at most capacityBytes of estimated
// entry footprint, rounded up to a whole number of BlockSize blocks (see
// engine/config's normalize, which performs the same rounding before the
// value reaches here).
func New(capacityBytes int64) *Cache {
	blocks := (capacityBytes + BlockSize - 1) / BlockSize
	if blocks < 1 {
		blocks = 1
	}
	c := &Cache{capacityBlocks: blocks}
	for i := range c.hashHeads {
		c.hashHeads[i] = -1
	}
	c.lruHead, c.lruTail = -1, -1
	return c
}

func bucketHash(device, inode uint64) uint64 {
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(device >> (8 * i))
		buf[8+i] = byte(inode >> (8 * i))
	}
	return highwayhash.Sum64(buf[:], highwayKey)
}

func bucketIndex(device, inode uint64) int {
	return int(bucketHash(device, inode) % NumSlots)
}

// blocksFor estimates the arena footprint of one ArrowFileState, in
// whole BlockSize blocks, rounding up so an entry never occupies a
// fraction of a block (the reference implementation's sub-block
// allocator isn't reproduced; whole-block granularity keeps the
// reclaim-budget arithmetic exact without it).
func blocksFor(f *types.ArrowFileState) int64 {
	n := int64(64) // ArrowFileState header + Filename + Stat
	for _, b := range f.Batches {
		n += 48 // RecordBatchState header
		n += int64(len(b.Fields)) * 160
	}
	if n == 0 {
		n = 1
	}
	blocks := (n + BlockSize - 1) / BlockSize
	if blocks < 1 {
		blocks = 1
	}
	return blocks
}

// Lookup finds a live, fresh entry for (device, inode, size, mtime). A
// cached entry whose stat no longer matches the current file identity is
// treated as a miss (the caller is expected to rebuild and Store), per
// spec.md §4.5's mtime-based staleness rule.
func (c *Cache) Lookup(stat types.FileStat) (Handle, *types.ArrowFileState, bool) {
	idx := bucketIndex(stat.Device, stat.Inode)

	// mu.RLock is held for the whole call, including the LRU bump below:
	// concurrent Lookups/Get calls (also RLock) are unaffected, only a
	// structural writer (Store/Invalidate/Reclaim, mu.Lock) is excluded,
	// which is the fixed rw-lock-before-spinlock order spec.md §4.5
	// requires.
	c.mu.RLock()
	defer c.mu.RUnlock()

	slot := c.hashHeads[idx]
	for slot != -1 {
		e := &c.slots[slot]
		if e.device == stat.Device && e.inode == stat.Inode {
			break
		}
		slot = e.hashNext
	}
	if slot == -1 {
		return Handle{}, nil, false
	}
	e := &c.slots[slot]
	if e.stat.Size != stat.Size || !e.stat.Mtime.Equal(stat.Mtime) {
		return Handle{}, nil, false
	}
	file := e.file
	gen := e.generation

	atomic.StoreInt64(&e.lastAccess, nowNano())
	c.spin.Lock()
	c.moveToFrontLocked(slot)
	c.spin.Unlock()

	return Handle{slot: slot, generation: gen}, file, true
}

// Get resolves a Handle back to its ArrowFileState, reporting false if
// the handle's generation is stale (the slot has been reclaimed and
// possibly reused for a different file since the handle was issued).
func (c *Cache) Get(h Handle) (*types.ArrowFileState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h.slot < 0 || h.slot >= len(c.slots) {
		return nil, false
	}
	e := &c.slots[h.slot]
	if !e.inUse || e.generation != h.generation {
		return nil, false
	}
	return e.file, true
}

// Store inserts a freshly-built ArrowFileState, evicting an existing
// entry for the same (device, inode) if present. If admitting file would
// push usedBlocks past capacityBlocks, Store invokes Reclaim repeatedly
// to make room; if the LRU tail is still too young to reclaim once the
// budget is still exceeded, Store admits nothing and returns ok=false,
// per spec.md §4.5's "allocator returns failure, driver proceeds
// uncached" boundary.
func (c *Cache) Store(stat types.FileStat, file *types.ArrowFileState) (h Handle, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := bucketIndex(stat.Device, stat.Inode)
	if existing := c.findLocked(idx, stat.Device, stat.Inode); existing != -1 {
		c.removeSlotLocked(existing)
	}

	need := blocksFor(file)
	for c.usedBlocks+need > c.capacityBlocks {
		if !c.reclaimOneLocked() {
			return Handle{}, false
		}
	}

	slot := c.allocSlotLocked()
	e := &c.slots[slot]
	e.generation++
	e.inUse = true
	e.device = stat.Device
	e.inode = stat.Inode
	e.stat = stat
	e.file = file
	atomic.StoreInt64(&e.lastAccess, nowNano())

	c.insertHashLocked(idx, slot)
	c.spin.Lock()
	c.insertLRUFrontLocked(slot)
	c.spin.Unlock()
	c.usedBlocks += need

	return Handle{slot: slot, generation: e.generation}, true
}

// Invalidate removes the entry for (device, inode), if present.
func (c *Cache) Invalidate(device, inode uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := bucketIndex(device, inode)
	if slot := c.findLocked(idx, device, inode); slot != -1 {
		c.removeSlotLocked(slot)
	}
}

// Reclaim inspects the single least-recently-used entry and evicts it if
// it has been idle longer than ReclaimThreshold, matching the reference
// implementation's pgstrom_arrow_metadata_reclaim: one candidate per
// call, never a sweep. Returns true if an entry was evicted.
func (c *Cache) Reclaim() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reclaimOneLocked()
}

// reclaimOneLocked is Reclaim's body with mu already held, so Store can
// retry reclaim inline while holding the same exclusive section instead
// of re-entering the mutex.
func (c *Cache) reclaimOneLocked() bool {
	if c.lruTail == -1 {
		return false
	}
	slot := c.lruTail
	last := atomic.LoadInt64(&c.slots[slot].lastAccess)
	if nowNano()-last < int64(ReclaimThreshold) {
		return false
	}
	c.removeSlotLocked(slot)
	return true
}

// ReclaimUntil repeatedly evicts the LRU tail, ignoring ReclaimThreshold,
// until at least targetFreeBlocks blocks are free or the cache is empty.
// This is an additive refinement over Reclaim for callers under sustained
// allocation pressure; it is never invoked automatically, and neither
// Store nor engine/scan calls it.
func (c *Cache) ReclaimUntil(targetFreeBlocks int64) (evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.capacityBlocks-c.usedBlocks < targetFreeBlocks && c.lruTail != -1 {
		c.removeSlotLocked(c.lruTail)
		evicted++
	}
	return evicted
}

// Stats reports current cache occupancy, for observability.
type Stats struct {
	EntryCount     int
	UsedBlocks     int64
	CapacityBlocks int64
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, e := range c.slots {
		if e.inUse {
			count++
		}
	}
	return Stats{EntryCount: count, UsedBlocks: c.usedBlocks, CapacityBlocks: c.capacityBlocks}
}

// --- unexported, mu must be held ---

func (c *Cache) findLocked(idx int, device, inode uint64) int {
	slot := c.hashHeads[idx]
	for slot != -1 {
		e := &c.slots[slot]
		if e.device == device && e.inode == inode {
			return slot
		}
		slot = e.hashNext
	}
	return -1
}

func (c *Cache) allocSlotLocked() int {
	if n := len(c.freeList); n > 0 {
		slot := c.freeList[n-1]
		c.freeList = c.freeList[:n-1]
		return slot
	}
	c.slots = append(c.slots, entry{hashNext: -1, hashPrev: -1, lruNext: -1, lruPrev: -1})
	return len(c.slots) - 1
}

func (c *Cache) removeSlotLocked(slot int) {
	e := &c.slots[slot]
	idx := bucketIndex(e.device, e.inode)
	c.removeHashLocked(idx, slot)
	c.spin.Lock()
	c.removeLRULocked(slot)
	c.spin.Unlock()
	c.usedBlocks -= blocksFor(e.file)
	if c.usedBlocks < 0 {
		c.usedBlocks = 0
	}
	e.inUse = false
	e.file = nil
	c.freeList = append(c.freeList, slot)
}

func (c *Cache) insertHashLocked(idx, slot int) {
	e := &c.slots[slot]
	e.hashNext = c.hashHeads[idx]
	e.hashPrev = -1
	if e.hashNext != -1 {
		c.slots[e.hashNext].hashPrev = slot
	}
	c.hashHeads[idx] = slot
}

func (c *Cache) removeHashLocked(idx, slot int) {
	e := &c.slots[slot]
	if e.hashPrev != -1 {
		c.slots[e.hashPrev].hashNext = e.hashNext
	} else {
		c.hashHeads[idx] = e.hashNext
	}
	if e.hashNext != -1 {
		c.slots[e.hashNext].hashPrev = e.hashPrev
	}
	e.hashNext, e.hashPrev = -1, -1
}

func (c *Cache) insertLRUFrontLocked(slot int) {
	e := &c.slots[slot]
	e.lruNext = c.lruHead
	e.lruPrev = -1
	if c.lruHead != -1 {
		c.slots[c.lruHead].lruPrev = slot
	}
	c.lruHead = slot
	if c.lruTail == -1 {
		c.lruTail = slot
	}
}

func (c *Cache) removeLRULocked(slot int) {
	e := &c.slots[slot]
	if e.lruPrev != -1 {
		c.slots[e.lruPrev].lruNext = e.lruNext
	} else {
		c.lruHead = e.lruNext
	}
	if e.lruNext != -1 {
		c.slots[e.lruNext].lruPrev = e.lruPrev
	} else {
		c.lruTail = e.lruPrev
	}
	e.lruNext, e.lruPrev = -1, -1
}

// moveToFrontLocked rewires LRU pointers only. Callers must hold c.mu
// (read or write) and c.spin; it must not touch hash buckets or grow the
// slots slice.
func (c *Cache) moveToFrontLocked(slot int) {
	if c.lruHead == slot {
		return
	}
	c.removeLRULocked(slot)
	c.insertLRUFrontLocked(slot)
}

func nowNano() int64 {
	return time.Now().UnixNano()
}

// spinlock is a minimal test-and-set spinlock over sync/atomic, used for
// the LRU-only critical section per spec.md §4.5's two-lock model. It is
// not reentrant and never held across I/O.
type spinlock struct {
	state int32
}

func (s *spinlock) Lock() {
	for !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		// busy-wait: critical sections guarded by spin are a handful of
		// pointer writes, never I/O, so spinning beats parking a
		// goroutine.
	}
}

func (s *spinlock) Unlock() {
	atomic.StoreInt32(&s.state, 0)
}
