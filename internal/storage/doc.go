// Package storage persists users, tracked food items and notification
// delivery records.
//
// Drivers:
//   - "sqlite": modernc.org/sqlite file database (default)
//   - "postgres": PostgreSQL through pgx's database/sql driver
//   - "memory": process-local maps, used by tests and dry runs
//
// The SQL drivers share one implementation built on squirrel; schemas are
// embedded goose migrations per dialect.
package storage
