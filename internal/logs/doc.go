// Package logs reads the JSON log file written by the daemon and CLI.
//
// Tail returns the last N matching entries and a byte offset; passing that
// offset back with Follow set waits for new lines, which powers
// `metaprop logs --follow`. A Filter narrows output to one record id or a
// minimum level so an operator can trace a single record through dispatch
// and drain.
package logs
