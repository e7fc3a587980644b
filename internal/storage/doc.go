// Package storage keeps the firing history of scheduled reminders.
//
// Drivers:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// Schedule definitions are never stored here; they come from the config file.
package storage
