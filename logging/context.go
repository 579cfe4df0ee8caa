package logging

import (
	"log/slog"
)

// WithComponent scopes a logger to an engine subsystem.
//
// Example:
//
//	log := logging.WithComponent(opts.Logger, "pager")
//	log.Debug("cache miss", "page", pn)
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	return OrDefault(l).With("component", component)
}

// WithTx adds the transaction id to every line.
func WithTx(l *slog.Logger, txID uint64) *slog.Logger {
	return OrDefault(l).With("tx_id", txID)
}

// WithPage adds a page number to every line.
func WithPage(l *slog.Logger, page uint32) *slog.Logger {
	return OrDefault(l).With("page", page)
}

// WithIndex adds the index name to every line.
func WithIndex(l *slog.Logger, index string) *slog.Logger {
	return OrDefault(l).With("index", index)
}
