// Package config holds the small set of knobs the syncd server and its
// CLI subcommands need: where the SQLite file lives, what address to bind,
// and how to log.
package config

// Server is the runtime configuration for the sync HTTP server.
type Server struct {
	// Database is the path to the SQLite database file.
	Database string
	// Addr is the address the HTTP server listens on, e.g. ":8080".
	Addr string
	// Verbose enables debug-level logging.
	Verbose bool
	// JSONLogs selects structured JSON log output over the console writer.
	JSONLogs bool
}

// DefaultAddr is used when no --addr flag is given.
const DefaultAddr = ":8080"
