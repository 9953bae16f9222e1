// Package schema compiles declarative table definitions into MySQL, SQLite
// or PostgreSQL DDL and runs them through an Executor.
package schema
