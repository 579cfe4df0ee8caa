package main

import (
	"KeelDB/dberrors"
	storageengine "KeelDB/storage_engine"
	bplus "KeelDB/storage_engine/access/indexfile_manager/bplustree"
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// SeedCmd inserts generated rows user<N> / person<N>@example.com.
type SeedCmd struct {
	Count int    `arg:"" help:"Number of rows to insert"`
	Start uint32 `name:"start" default:"1" help:"First id"`
	Batch int    `name:"batch" default:"100" help:"Rows per transaction"`
}

// validate rejects a batch size below one and a range that runs past the
// largest id.
func (c *SeedCmd) validate() error {
	if c.Batch <= 0 {
		return dberrors.NewValidationError("batch", "must be positive, got %d", c.Batch)
	}
	if c.Count < 0 || uint64(c.Start)+uint64(c.Count) > math.MaxUint32+1 {
		return dberrors.NewValidationError("count", "%d rows from id %d run past id %d", c.Count, c.Start, uint32(math.MaxUint32))
	}
	return nil
}

func (c *SeedCmd) Run(g *Globals) error {
	if err := c.validate(); err != nil {
		return err
	}
	return g.withEngine(func(se *storageengine.Engine) error {
		start := time.Now()
		id := c.Start
		for done := 0; done < c.Count; {
			tx, err := se.Begin()
			if err != nil {
				return err
			}
			n := min(c.Batch, c.Count-done)
			for i := 0; i < n; i++ {
				row := types.Row{
					ID:       id,
					Username: fmt.Sprintf("user%d", id),
					Email:    fmt.Sprintf("person%d@example.com", id),
				}
				if err := tx.Insert(row); err != nil {
					return errors.Join(fmt.Errorf("row %d: %w", id, err), tx.Rollback())
				}
				id++
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			done += n
		}
		fmt.Printf("inserted %s rows in %s (%s rows total)\n",
			humanize.Comma(int64(c.Count)), time.Since(start).Round(time.Millisecond),
			humanize.Comma(int64(se.RowCount())))
		return nil
	})
}

type InsertCmd struct {
	ID       uint32 `arg:"" help:"Row id"`
	Username string `arg:"" help:"Username (up to 32 bytes)"`
	Email    string `arg:"" help:"Email (up to 255 bytes)"`
}

func (c *InsertCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		return se.InsertRow(types.Row{ID: c.ID, Username: c.Username, Email: c.Email})
	})
}

type UpdateCmd struct {
	ID       uint32 `arg:"" help:"Row id"`
	Username string `arg:"" help:"New username"`
	Email    string `arg:"" help:"New email"`
}

func (c *UpdateCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		return se.UpdateRow(types.Row{ID: c.ID, Username: c.Username, Email: c.Email})
	})
}

type GetCmd struct {
	ID uint32 `arg:"" help:"Row id"`
}

func (c *GetCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		row, err := se.LookupByID(c.ID)
		if err != nil {
			return err
		}
		printRows([]types.Row{*row})
		return nil
	})
}

// FindCmd looks rows up by email. With --hash-only every row sharing the
// email's hash is printed, the way the secondary index sees them.
type FindCmd struct {
	Email    string `arg:"" help:"Email to look up"`
	HashOnly bool   `name:"hash-only" help:"Match on the email hash only"`
}

func (c *FindCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		var (
			rows []types.Row
			err  error
		)
		if c.HashOnly {
			rows, err = se.LookupByIndexedColumn(types.HashEmail(c.Email))
		} else {
			rows, err = se.LookupByEmail(c.Email)
		}
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("no rows")
			return nil
		}
		printRows(rows)
		return nil
	})
}

type DeleteCmd struct {
	ID uint32 `arg:"" help:"Row id"`
}

func (c *DeleteCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		return se.DeleteRow(c.ID)
	})
}

type ScanCmd struct {
	From  uint32 `name:"from" default:"0" help:"Lowest id"`
	To    uint32 `name:"to" default:"4294967295" help:"Highest id"`
	Limit int    `name:"limit" short:"n" default:"50" help:"Stop after this many rows (0 for all)"`
}

func (c *ScanCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		it := se.ScanRange(c.From, c.To)
		defer it.Close()

		var rows []types.Row
		for it.Next() {
			rows = append(rows, it.Row())
			if c.Limit > 0 && len(rows) >= c.Limit {
				break
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
		printRows(rows)
		return nil
	})
}

// InspectCmd prints the header and, per tree level, the node count and how
// full the nodes are.
type InspectCmd struct {
	Nodes bool `name:"nodes" help:"Also list every node"`
}

type levelStats struct {
	nodes   int
	entries int
	kind    types.PageKind
}

func (c *InspectCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		h := se.Header()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "database\t%s\n", h.DatabaseID)
		fmt.Fprintf(w, "version\t%d\n", h.Version)
		fmt.Fprintf(w, "page size\t%s\n", humanize.IBytes(uint64(h.PageSize)))
		fmt.Fprintf(w, "pages\t%s (%s)\n", humanize.Comma(int64(h.PageCount)), humanize.IBytes(uint64(h.PageCount)*types.PageSize))
		fmt.Fprintf(w, "free list head\t%d\n", h.FreeListHead)
		fmt.Fprintf(w, "rows\t%s\n", humanize.Comma(int64(h.RowCount)))
		fmt.Fprintf(w, "checkpoint LSN\t%d\n", h.CheckpointLSN)
		w.Flush()

		for _, idx := range []types.IndexID{types.IndexPrimary, types.IndexSecondary} {
			if err := c.inspectTree(se, idx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *InspectCmd) inspectTree(se *storageengine.Engine, idx types.IndexID) error {
	tree, err := se.IndexManager.Tree(idx)
	if err != nil {
		return err
	}
	layout := tree.Layout()

	var levels []levelStats
	err = se.WalkIndex(idx, func(level int, n *bplus.Node) error {
		for len(levels) <= level {
			levels = append(levels, levelStats{})
		}
		ls := &levels[level]
		ls.nodes++
		ls.entries += len(n.Keys)
		ls.kind = n.Kind
		if c.Nodes {
			fmt.Printf("  %s L%d page %d %s keys=%d next=%d\n", idx, level, n.PageNum, n.Kind, len(n.Keys), n.Next)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%s index (root page %d, %d levels)\n", idx, tree.Root(), len(levels))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "level\tkind\tnodes\tentries\tfill")
	for i, ls := range levels {
		capacity := layout.InternalCapacity()
		if ls.kind == types.PageKindLeaf {
			capacity = layout.LeafCapacity()
		}
		fill := 0.0
		if ls.nodes > 0 {
			fill = 100 * float64(ls.entries) / float64(ls.nodes*capacity)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f%%\n", i, ls.kind,
			humanize.Comma(int64(ls.nodes)), humanize.Comma(int64(ls.entries)), fill)
	}
	return w.Flush()
}

type VerifyCmd struct{}

func (c *VerifyCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		rep, err := se.Verify()
		if err != nil {
			return err
		}
		fmt.Printf("rows %s, index entries %s, tracked rows %s, free pages %d\n",
			humanize.Comma(int64(rep.Rows)), humanize.Comma(int64(rep.IndexEntries)),
			humanize.Comma(int64(rep.TrackedRows)), rep.FreePages)
		if rep.StructureProblem != nil {
			fmt.Printf("structure: %v\n", rep.StructureProblem)
		}
		for _, o := range rep.OrphanEntries {
			fmt.Printf("orphan entry: hash %08x -> id %d\n", o.Hash, o.ID)
		}
		for _, id := range rep.MissingEntries {
			fmt.Printf("row %d has no secondary entry\n", id)
		}
		if !rep.OK() {
			return dberrors.Corruptf(se.Path(), "verification failed")
		}
		fmt.Println("ok")
		return nil
	})
}

type DigestCmd struct{}

func (c *DigestCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		d, err := se.Digest()
		if err != nil {
			return err
		}
		fmt.Println(d)
		return nil
	})
}

type CheckpointCmd struct{}

func (c *CheckpointCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		cp, err := se.Checkpoint()
		if err != nil {
			return err
		}
		fmt.Printf("checkpoint at LSN %d: %d pages written, %s of WAL retired\n",
			cp.LSN, cp.PagesWritten, humanize.IBytes(uint64(cp.WALRetired)))
		if cp.Archive != "" {
			fmt.Printf("archived to %s\n", cp.Archive)
		}
		return nil
	})
}

type StatsCmd struct{}

func (c *StatsCmd) Run(g *Globals) error {
	return g.withEngine(func(se *storageengine.Engine) error {
		st, err := se.Stats()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "path\t%s\n", st.Path)
		fmt.Fprintf(w, "database\t%s\n", st.DatabaseID)
		fmt.Fprintf(w, "rows\t%s\n", humanize.Comma(int64(st.Rows)))
		fmt.Fprintf(w, "pages\t%s (%d free, %d dirty)\n", humanize.Comma(int64(st.PageCount)), st.FreePages, st.DirtyPages)
		fmt.Fprintf(w, "file size\t%s on disk, %s in use\n", humanize.IBytes(uint64(st.FileBytes)), humanize.IBytes(uint64(st.PageCount)*types.PageSize))
		fmt.Fprintf(w, "primary\troot %d, height %d\n", st.PrimaryRoot, st.PrimaryHeight)
		fmt.Fprintf(w, "secondary\troot %d, height %d\n", st.SecondaryRoot, st.SecondaryHeight)
		fmt.Fprintf(w, "cache\t%d hits, %d misses (%.1f%%), %d disk reads\n",
			st.CacheHits, st.CacheMisses, 100*st.CacheHitRatio, st.DiskReads)
		fmt.Fprintf(w, "wal\t%s, last LSN %d, checkpoint LSN %d, sync %s\n",
			humanize.IBytes(uint64(st.WALBytes)), st.LastLSN, st.CheckpointLSN, st.SyncMode)

		cp, err := se.LastCheckpoint()
		if err != nil {
			return err
		}
		if cp.Timestamp != 0 {
			fmt.Fprintf(w, "last checkpoint\t%s, %d pages written, %s retired\n",
				humanize.Time(time.Unix(cp.Timestamp, 0)), cp.PagesWritten, humanize.IBytes(uint64(cp.WALRetired)))
		}
		return w.Flush()
	})
}

// WALCmd dumps an archived log. It does not open the database.
type WALCmd struct {
	Archive string `arg:"" help:"Archived WAL (.xz)" type:"existingfile"`
	Data    bool   `name:"data" help:"Print keys and images in hex"`
}

func (c *WALCmd) Run() error {
	a, err := wal_manager.ReadArchive(c.Archive)
	if err != nil {
		return err
	}
	fmt.Printf("database %s, base LSN %d, %s records\n", a.DatabaseID, a.BaseLSN, humanize.Comma(int64(len(a.Records))))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "lsn\ttxn\tkind\tindex\tkey\tbefore\tafter")
	for _, r := range a.Records {
		key, before, after := fmt.Sprint(len(r.Key)), fmt.Sprint(len(r.Before)), fmt.Sprint(len(r.After))
		if c.Data {
			key, before, after = hex.EncodeToString(r.Key), hex.EncodeToString(r.Before), hex.EncodeToString(r.After)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n", r.LSN, r.TxnID, r.Kind, r.Index, key, before, after)
	}
	return w.Flush()
}

func printRows(rows []types.Row) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "id\tusername\temail")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Username, r.Email)
	}
	w.Flush()
}
