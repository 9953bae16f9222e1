// Package database is the driver abstraction and ORM facade.
//
// A Driver knows how to open, configure and introspect one backend (MySQL,
// SQLite, Postgres). The ORM owns exactly one pinned connection from a
// driver and offers table-oriented CRUD, raw queries, nested transactions
// and schema introspection on top of it. Statements are prepared once and
// cached for the lifetime of the ORM.
package database
