// Package sqlite stores experiment runs in a SQLite database through
// mattn/go-sqlite3. It is the default tracking backend; the database file
// is created on first use.
package sqlite
