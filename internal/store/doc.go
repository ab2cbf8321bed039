// Package store owns the SQLite database shared by the agent registry, team
// composer, and evaluation job packages.
//
// It opens the database with WAL and foreign-key pragmas, applies the
// embedded migrations, and exposes busy-retry execution helpers plus the
// null/time conversion helpers every table scanner relies on. Multi-row
// mutations go through InTx so partial failures roll back to the previous
// consistent state.
package store
