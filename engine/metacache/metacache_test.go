package metacache

import (
	"testing"
	"time"

	"github.com/scrapbird/arrowfdw/engine/types"
)

func fileFor(name string) *types.ArrowFileState {
	return &types.ArrowFileState{
		Filename: name,
		Batches:  []types.RecordBatchState{{RowCount: 10}},
	}
}

func TestStoreThenLookup_Hit(t *testing.T) {
	c := New(BlockSize)
	stat := types.FileStat{Device: 1, Inode: 2, Size: 100, Mtime: time.Unix(1000, 0)}
	c.Store(stat, fileFor("a.arrow"))

	h, file, ok := c.Lookup(stat)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if file.Filename != "a.arrow" {
		t.Fatalf("unexpected file: %+v", file)
	}
	got, ok := c.Get(h)
	if !ok || got.Filename != "a.arrow" {
		t.Fatalf("Get via handle failed: %+v ok=%v", got, ok)
	}
}

func TestLookup_MissOnDifferentInode(t *testing.T) {
	c := New(BlockSize)
	c.Store(types.FileStat{Device: 1, Inode: 2, Size: 100, Mtime: time.Unix(1000, 0)}, fileFor("a.arrow"))

	_, _, ok := c.Lookup(types.FileStat{Device: 1, Inode: 99})
	if ok {
		t.Fatalf("expected miss for unrelated inode")
	}
}

func TestLookup_MissOnStaleMtime(t *testing.T) {
	c := New(BlockSize)
	stat := types.FileStat{Device: 1, Inode: 2, Size: 100, Mtime: time.Unix(1000, 0)}
	c.Store(stat, fileFor("a.arrow"))

	staleStat := stat
	staleStat.Mtime = time.Unix(2000, 0)
	_, _, ok := c.Lookup(staleStat)
	if ok {
		t.Fatalf("expected miss when mtime has advanced")
	}
}

func TestStore_ReplacesExistingEntryForSameFile(t *testing.T) {
	c := New(BlockSize)
	stat := types.FileStat{Device: 1, Inode: 2, Size: 100, Mtime: time.Unix(1000, 0)}
	c.Store(stat, fileFor("old.arrow"))
	c.Store(stat, fileFor("new.arrow"))

	_, file, ok := c.Lookup(stat)
	if !ok || file.Filename != "new.arrow" {
		t.Fatalf("expected replaced entry, got %+v ok=%v", file, ok)
	}
	if c.Stats().EntryCount != 1 {
		t.Fatalf("expected exactly 1 entry after replace, got %d", c.Stats().EntryCount)
	}
}

func TestGet_StaleHandleAfterInvalidate(t *testing.T) {
	c := New(BlockSize)
	stat := types.FileStat{Device: 1, Inode: 2, Size: 100, Mtime: time.Unix(1000, 0)}
	h, _ := c.Store(stat, fileFor("a.arrow"))

	c.Invalidate(1, 2)

	if _, ok := c.Get(h); ok {
		t.Fatalf("expected stale handle to fail Get after invalidation")
	}
}

func TestGet_StaleHandleAfterSlotReuse(t *testing.T) {
	c := New(BlockSize)
	stat1 := types.FileStat{Device: 1, Inode: 2, Size: 100, Mtime: time.Unix(1000, 0)}
	stat2 := types.FileStat{Device: 1, Inode: 3, Size: 100, Mtime: time.Unix(1000, 0)}

	h1, _ := c.Store(stat1, fileFor("a.arrow"))
	c.Invalidate(1, 2) // frees the slot back onto freeList
	h2, _ := c.Store(stat2, fileFor("b.arrow"))

	if h1.slot == h2.slot && h1.generation == h2.generation {
		t.Fatalf("expected distinct generations after slot reuse")
	}
	if _, ok := c.Get(h1); ok {
		t.Fatalf("expected old handle to be rejected after slot reuse")
	}
	got, ok := c.Get(h2)
	if !ok || got.Filename != "b.arrow" {
		t.Fatalf("expected new handle to resolve to b.arrow, got %+v ok=%v", got, ok)
	}
}

func TestReclaim_RespectsThreshold(t *testing.T) {
	c := New(BlockSize)
	stat := types.FileStat{Device: 1, Inode: 2, Size: 100, Mtime: time.Unix(1000, 0)}
	c.Store(stat, fileFor("a.arrow"))

	if c.Reclaim() {
		t.Fatalf("expected Reclaim to decline a freshly-stored entry")
	}
	if c.Stats().EntryCount != 1 {
		t.Fatalf("expected entry to remain")
	}
}

func TestReclaimUntil_EvictsDownToBudget(t *testing.T) {
	c := New(5 * BlockSize) // room for all five 1-block entries
	for i := 0; i < 5; i++ {
		stat := types.FileStat{Device: 1, Inode: uint64(i), Size: 100, Mtime: time.Unix(1000, 0)}
		c.Store(stat, fileFor("f.arrow"))
	}
	evicted := c.ReclaimUntil(c.capacityBlocks)
	if evicted == 0 {
		t.Fatalf("expected ReclaimUntil to evict at least one entry")
	}
	if c.Stats().EntryCount >= 5 {
		t.Fatalf("expected entry count to shrink, got %d", c.Stats().EntryCount)
	}
}

func TestStore_ReclaimsLRUTailWhenCacheFull(t *testing.T) {
	c := New(BlockSize) // capacity is exactly 1 block; every fileFor entry costs 1 block
	statA := types.FileStat{Device: 1, Inode: 1, Size: 10, Mtime: time.Unix(1000, 0)}
	statB := types.FileStat{Device: 1, Inode: 2, Size: 10, Mtime: time.Unix(1000, 0)}

	if _, ok := c.Store(statA, fileFor("a.arrow")); !ok {
		t.Fatalf("expected first store to succeed")
	}
	// Age A past ReclaimThreshold so Store's reclaim retry can evict it.
	c.slots[c.lruTail].lastAccess = nowNano() - int64(ReclaimThreshold) - 1

	if _, ok := c.Store(statB, fileFor("b.arrow")); !ok {
		t.Fatalf("expected second store to succeed by reclaiming A")
	}
	if c.Stats().EntryCount != 1 {
		t.Fatalf("expected exactly 1 entry after reclaim-and-insert, got %d", c.Stats().EntryCount)
	}
	if _, _, ok := c.Lookup(statA); ok {
		t.Fatalf("expected A to have been reclaimed")
	}
	if _, _, ok := c.Lookup(statB); !ok {
		t.Fatalf("expected B to be present")
	}
}

func TestStore_FailsWhenCacheFullAndTailTooYoung(t *testing.T) {
	c := New(BlockSize) // capacity is exactly 1 block
	statA := types.FileStat{Device: 1, Inode: 1, Size: 10, Mtime: time.Unix(1000, 0)}
	statB := types.FileStat{Device: 1, Inode: 2, Size: 10, Mtime: time.Unix(1000, 0)}

	if _, ok := c.Store(statA, fileFor("a.arrow")); !ok {
		t.Fatalf("expected first store to succeed")
	}
	// A is freshly stored, well inside ReclaimThreshold: no room for B.
	if _, ok := c.Store(statB, fileFor("b.arrow")); ok {
		t.Fatalf("expected second store to fail while cache is full and A is too young to reclaim")
	}
	if c.Stats().EntryCount != 1 {
		t.Fatalf("expected A to remain the only entry, got %d", c.Stats().EntryCount)
	}
	if _, _, ok := c.Lookup(statB); ok {
		t.Fatalf("expected B to never have been admitted")
	}
}

func TestLookup_BumpsMostRecentlyUsedAheadOfReclaim(t *testing.T) {
	c := New(2 * BlockSize) // room for both A and B
	statA := types.FileStat{Device: 1, Inode: 1, Size: 10, Mtime: time.Unix(1000, 0)}
	statB := types.FileStat{Device: 1, Inode: 2, Size: 10, Mtime: time.Unix(1000, 0)}
	c.Store(statA, fileFor("a.arrow"))
	c.Store(statB, fileFor("b.arrow"))

	// Touch A so B becomes the LRU tail.
	c.Lookup(statA)

	if c.lruTail == -1 {
		t.Fatalf("expected a non-empty LRU tail")
	}
	tailEntry := c.slots[c.lruTail]
	if tailEntry.inode != statB.Inode {
		t.Fatalf("expected B to be LRU tail after touching A, tail inode=%d", tailEntry.inode)
	}
}
