// Package db provides the database layer for the DIGIT-HAB backend.
// It encapsulates all interactions with the underlying SQL database, managing
// data persistence for the application domains: users and profiles, agencies,
// leads, properties, commissions, appointments, reservations, chat,
// notifications, automation scripts, tenant routes, and activity logs.
//
// This package is responsible for:
// - Establishing and managing database connections for both dialects (`db.go`).
// - Defining database-specific data structures that map to SQL table schemas.
// - Implementing repository interfaces (e.g., `LeadRepository`, `ChatRepository`)
//   to perform CRUD operations.
// - Handling data conversion between domain-specific structs (from the `domain` package)
//   and database-friendly structs, including the use of `sql.Null*` types for nullable fields.
// - Managing database migrations (`migrations/`).
// - Providing common database utility types (`types.go`).
//
// The same repository code and migration chain run on SQLite (development)
// and PostgreSQL (production); queries stay inside the SQL subset both
// dialects execute, and positional queries pass through Rebind.
package db
