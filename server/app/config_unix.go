//go:build !windows
// +build !windows

package app

const (
	// DefaultSQLiteConnectionString is the database used when no connection string is configured.
	DefaultSQLiteConnectionString = "file:/var/lib/jobvars/db/sqlite.db?cache=shared"
)
