package pager

import (
	"KeelDB/dberrors"
	"KeelDB/storage_engine/page"
	"KeelDB/types"
)

/*
This file holds helper functions for the pager
*/

// GetStats returns current pager statistics
func (p *Pager) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		PageCount:    p.pageCount,
		DirtyPages:   len(p.dirty),
		FreeListHead: p.freeHead,
		DiskReads:    p.diskReads,
	}
	if p.cache != nil && p.cache.Metrics != nil {
		stats.CacheHits = p.cache.Metrics.Hits()
		stats.CacheMisses = p.cache.Metrics.Misses()
		stats.HitRatio = p.cache.Metrics.Ratio()
	}
	return stats
}

// PageCount is the logical size of the database in pages, including pages
// that so far only exist in memory.
func (p *Pager) PageCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCount
}

func (p *Pager) FreeListHead() types.PageNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeHead
}

// DirtyCount returns the number of pages waiting for a checkpoint.
func (p *Pager) DirtyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dirty)
}

// FreeListLength walks the free list. A cycle or a non free page on the
// list is corruption.
func (p *Pager) FreeListLength() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for pn := p.freeHead; pn != types.InvalidPage; n++ {
		if uint32(n) >= p.pageCount {
			return n, dberrors.Corruptf(p.disk.Path(), "free list longer than the file, cycle at page %d", pn)
		}
		buf, err := p.readLocked(pn)
		if err != nil {
			return n, err
		}
		h := page.DecodeHeader(buf)
		if h.Kind != types.PageKindFree {
			return n, dberrors.PageCorruptf(p.disk.Path(), uint32(pn), "free list entry has kind %v", h.Kind)
		}
		pn = h.Next
	}
	return n, nil
}
