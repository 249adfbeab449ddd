// Package recordstore is a SQLite-backed metadata store and relationship graph.
//
// Records are stored as a header row plus ordered field values and ordered
// typed relations. Persist replaces a record's fields and relations inside one
// transaction so readers never observe a half-written record. DependentsOf
// answers the reverse relation lookup the dispatcher uses to invalidate
// derived metadata. Import and Encode read and write the YAML seed format used
// by the CLI.
package recordstore
