package pager

import (
	"KeelDB/dberrors"
	"KeelDB/logging"
	diskmanager "KeelDB/storage_engine/disk_manager"
	"KeelDB/storage_engine/page"
	"KeelDB/types"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto/v2"
)

/*
This file is the main file of the pager
Reads are served from the dirty table first, then from the clean cache, and
only on a miss from the disk manager; the page read from disk is added to the
cache for future access.

Writes never touch disk. WritePage stamps the page with the newest WAL LSN
and parks it in the dirty table. Flush refuses a page whose LSN is not yet
covered by the WAL's flushed LSN, so the log always reaches disk first.

Callers always get a private copy of a page and hand a copy back; no buffer
owned by the pager escapes it.
*/

func New(disk *diskmanager.DiskManager, pageCount uint32, freeHead types.PageNumber, opts Options) (*Pager, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint32, cachedPage]{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}

	if pageCount == 0 {
		pageCount = 1 // page 0 is always the file header
	}

	return &Pager{
		disk:      disk,
		cache:     cache,
		dirty:     make(map[types.PageNumber]*dirtyPage),
		gens:      make(map[types.PageNumber]uint64),
		pageCount: pageCount,
		freeHead:  freeHead,
		log:       logging.WithComponent(opts.Logger, "pager"),
	}, nil
}

func (p *Pager) SetLSNSource(wal LSNSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wal = wal
}

// AllocatePage returns a zeroed page, reusing the free list before growing
// the file.
func (p *Pager) AllocatePage() (types.PageNumber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pn types.PageNumber
	if p.freeHead != types.InvalidPage {
		pn = p.freeHead
		buf, err := p.readLocked(pn)
		if err != nil {
			return 0, fmt.Errorf("failed to read free page %d: %w", pn, err)
		}
		h := page.DecodeHeader(buf)
		if h.Kind != types.PageKindFree {
			return 0, dberrors.PageCorruptf(p.disk.Path(), uint32(pn), "free list entry has kind %v", h.Kind)
		}
		p.freeHead = h.Next
		p.log.Debug("reusing free page", "page", pn, "next_free", h.Next)
	} else {
		pn = types.PageNumber(p.pageCount)
		p.pageCount++
	}

	p.writeLocked(pn, page.NewBuffer())
	return pn, nil
}

// ReadPage returns a private copy of page pn.
func (p *Pager) ReadPage(pn types.PageNumber) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf, err := p.readLocked(pn)
	if err != nil {
		return nil, err
	}
	return slices.Clone(buf), nil
}

// WritePage records a new image of pn. The page becomes dirty and stays in
// memory until the next flush.
func (p *Pager) WritePage(pn types.PageNumber, buf []byte) error {
	if len(buf) != page.PageSize {
		return fmt.Errorf("page data size %d does not match page size %d", len(buf), page.PageSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRange(pn); err != nil {
		return err
	}
	p.writeLocked(pn, slices.Clone(buf))
	return nil
}

// FreePage pushes pn on the free list. Its content is replaced by a free
// page header linking to the previous head.
func (p *Pager) FreePage(pn types.PageNumber) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pn == types.InvalidPage {
		return fmt.Errorf("cannot free the file header page")
	}
	if err := p.checkRange(pn); err != nil {
		return err
	}

	buf := page.NewBuffer()
	page.EncodeHeader(buf, page.Header{Kind: types.PageKindFree, Next: p.freeHead})
	p.writeLocked(pn, buf)
	p.freeHead = pn
	return nil
}

// Flush writes pn to the main file and syncs it, if it is dirty.
func (p *Pager) Flush(pn types.PageNumber) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.dirty[pn]
	if !ok {
		return nil // Nothing to flush
	}
	if err := p.checkWALCovers(pn, d); err != nil {
		return err
	}

	if err := p.disk.WritePage(pn, d.data); err != nil {
		return fmt.Errorf("failed to flush page %d: %w", pn, err)
	}
	if err := p.disk.Sync(); err != nil {
		return err
	}
	p.markClean(pn, d)
	return nil
}

// FlushAll writes every dirty page in page order and syncs once. No page is
// written when any of them is ahead of the WAL.
func (p *Pager) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pns := p.sortedDirtyLocked()
	for _, pn := range pns {
		if err := p.checkWALCovers(pn, p.dirty[pn]); err != nil {
			return err
		}
	}

	for _, pn := range pns {
		if err := p.disk.WritePage(pn, p.dirty[pn].data); err != nil {
			return fmt.Errorf("failed to flush page %d: %w", pn, err)
		}
	}
	if err := p.disk.Sync(); err != nil {
		return err
	}

	for _, pn := range pns {
		p.markClean(pn, p.dirty[pn])
	}
	p.log.Debug("flushed dirty pages", "pages", len(pns))
	return nil
}

// DirtyPages snapshots every dirty page in page order.
func (p *Pager) DirtyPages() []DirtyPage {
	p.mu.Lock()
	defer p.mu.Unlock()

	pns := p.sortedDirtyLocked()
	out := make([]DirtyPage, 0, len(pns))
	for _, pn := range pns {
		d := p.dirty[pn]
		out = append(out, DirtyPage{PageNumber: pn, Data: slices.Clone(d.data), LSN: d.lsn})
	}
	return out
}

// Close drops every cached and dirty page. It does not flush.
func (p *Pager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil {
		p.cache.Close()
		p.cache = nil
	}
	p.dirty = make(map[types.PageNumber]*dirtyPage)
}

// ############################################# INTERNALS #############################################

// readLocked returns the pager owned buffer for pn. Assumes lock is held.
func (p *Pager) readLocked(pn types.PageNumber) ([]byte, error) {
	if err := p.checkRange(pn); err != nil {
		return nil, err
	}

	if d, ok := p.dirty[pn]; ok {
		return d.data, nil
	}

	if p.cache == nil {
		return nil, dberrors.ErrClosed
	}

	gen := p.gens[pn]
	if v, ok := p.cache.Get(uint32(pn)); ok && v.gen == gen {
		return v.data, nil
	}

	buf := page.NewBuffer()
	if err := p.disk.ReadPage(pn, buf); err != nil {
		return nil, err
	}
	p.diskReads++
	p.cache.Set(uint32(pn), cachedPage{gen: gen, data: buf}, 1)
	return buf, nil
}

// writeLocked takes ownership of buf. Assumes lock is held.
func (p *Pager) writeLocked(pn types.PageNumber, buf []byte) {
	var lsn uint64
	if p.wal != nil {
		lsn = p.wal.GetLastLSN()
	}
	page.SetLSN(buf, lsn)

	p.gens[pn]++
	p.dirty[pn] = &dirtyPage{data: buf, lsn: lsn}
	if p.cache != nil {
		p.cache.Del(uint32(pn))
	}
}

func (p *Pager) markClean(pn types.PageNumber, d *dirtyPage) {
	delete(p.dirty, pn)
	if p.cache != nil {
		p.cache.Set(uint32(pn), cachedPage{gen: p.gens[pn], data: d.data}, 1)
	}
}

func (p *Pager) checkRange(pn types.PageNumber) error {
	if uint32(pn) >= p.pageCount {
		return dberrors.NewIOError("access", p.disk.Path(),
			fmt.Errorf("page %d out of range (page count %d)", pn, p.pageCount))
	}
	return nil
}

func (p *Pager) checkWALCovers(pn types.PageNumber, d *dirtyPage) error {
	if p.wal == nil {
		return nil
	}
	flushed := p.wal.GetFlushedLSN()
	if d.lsn > flushed {
		logging.WithPage(p.log, uint32(pn)).Warn("flush blocked by write-ahead rule", "page_lsn", d.lsn, "flushed_lsn", flushed)
		return fmt.Errorf("cannot flush page %d: pageLSN=%d not yet covered by WAL flushedLSN=%d", pn, d.lsn, flushed)
	}
	return nil
}

func (p *Pager) sortedDirtyLocked() []types.PageNumber {
	pns := make([]types.PageNumber, 0, len(p.dirty))
	for pn := range p.dirty {
		pns = append(pns, pn)
	}
	slices.Sort(pns)
	return pns
}
