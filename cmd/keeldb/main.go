// Command keeldb opens a KeelDB file and runs one operation on it: loading
// sample rows, lookups, scans, deletes, and the maintenance commands
// (inspect, verify, digest, checkpoint, stats, wal).
//
// Usage:
//
//	keeldb --db users.db seed 10000
//	keeldb --db users.db get 42
//	keeldb --db users.db find person42@example.com
//	keeldb --db users.db verify
package main

import (
	"KeelDB/logging"
	storageengine "KeelDB/storage_engine"
	"KeelDB/storage_engine/wal_manager"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

const version = "0.4.0"

// Globals are the flags every command shares.
type Globals struct {
	DB         string `name:"db" short:"d" env:"KEELDB_PATH" default:"keel.db" help:"Database file" type:"path"`
	LogLevel   string `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`
	LogFormat  string `name:"log-format" default:"text" enum:"text,json" help:"Log format (text, json)"`
	CachePages int    `name:"cache-pages" default:"256" help:"Clean pages kept in memory"`
	Sync       string `name:"sync" default:"record" enum:"record,commit" help:"fsync every record or once per commit"`
	ArchiveDir string `name:"archive-dir" help:"Keep retired WAL files here, xz compressed" type:"path"`
}

// CLI defines the command-line interface.
var CLI struct {
	Globals

	Seed       SeedCmd       `cmd:"" help:"Insert N generated rows"`
	Insert     InsertCmd     `cmd:"" help:"Insert one row"`
	Update     UpdateCmd     `cmd:"" help:"Replace one row"`
	Get        GetCmd        `cmd:"" help:"Look up a row by id"`
	Find       FindCmd       `cmd:"" help:"Look up rows by email through the secondary index"`
	Delete     DeleteCmd     `cmd:"" help:"Delete a row by id"`
	Scan       ScanCmd       `cmd:"" help:"Print rows in id order"`
	Inspect    InspectCmd    `cmd:"" help:"Print the file header and the shape of both trees"`
	Verify     VerifyCmd     `cmd:"" help:"Check both trees and their agreement"`
	Digest     DigestCmd     `cmd:"" help:"Print the BLAKE3 digest of the rows and the secondary index"`
	Checkpoint CheckpointCmd `cmd:"" help:"Write dirty pages to the main file and truncate the WAL"`
	Stats      StatsCmd      `cmd:"" help:"Print engine counters"`
	WAL        WALCmd        `cmd:"" name:"wal" help:"Dump the records of an archived WAL"`
	Version    VersionCmd    `cmd:"" help:"Print version information"`
}

func (g *Globals) options() (storageengine.Options, error) {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return storageengine.Options{}, err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return storageengine.Options{}, err
	}
	logging.InitLogger(level, format, os.Stderr)

	mode, err := wal_manager.ParseSyncMode(g.Sync)
	if err != nil {
		return storageengine.Options{}, err
	}

	opts := storageengine.DefaultOptions()
	opts.CacheSize = g.CachePages
	opts.SyncMode = mode
	opts.ArchiveDir = g.ArchiveDir
	opts.Logger = logging.GetLogger()
	return opts, nil
}

// withEngine opens the database, runs fn and closes it, reporting the first
// error.
func (g *Globals) withEngine(fn func(se *storageengine.Engine) error) (err error) {
	opts, err := g.options()
	if err != nil {
		return err
	}
	se, err := storageengine.Open(g.DB, opts)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", g.DB, err)
	}
	defer func() {
		if cerr := se.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", g.DB, cerr)
		}
	}()
	return fn(se)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("keeldb v%s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("keeldb"),
		kong.Description("Single-file row store with a clustered id index and an email hash index"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
