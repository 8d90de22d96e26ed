// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Components take a *zap.Logger obtained from Logger.Component and attach
// the shared field helpers (TerminalID, RemoteTerminalID, ProjectID) so log
// lines for one terminal can be correlated across the local and remote paths.
//
// Example Usage:
//
//	logger := logging.NewOrNop(logging.DefaultConfig())
//	log := logger.Component("project")
//	log.Info("terminal created", logging.TerminalID(t.ID().String()))
package logging
