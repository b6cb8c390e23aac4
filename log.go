package tiffrw

import "go.uber.org/zap"

// logger is the package-wide structured logger. The teacher logs
// through go.airbusds-geo.com/log, a private one-file wrapper around
// zap that isn't fetchable outside Airbus's module proxy (see
// DESIGN.md); tiffrw calls zap directly for the same concern.
var logger = zap.NewNop()

// SetLogger installs the structured logger used for engine-level
// diagnostics (tile loads, flushes, cache evictions), and replaces
// zap's package-level global so callers reaching for zap.L() (e.g.
// cmd/tiffrw's batch subcommand) see the same logger. Passing nil
// restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop()
		zap.ReplaceGlobals(logger)
		return
	}
	logger = l
	zap.ReplaceGlobals(logger)
}
