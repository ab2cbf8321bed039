// Package logs reads the daemon log files for the CLI.
//
// Tail returns the last lines of a log, optionally filtered to a single
// evaluation job, and Follow keeps reading from the returned offset until the
// context ends. Both understand the console and JSON formats written by the
// logging package.
package logs
