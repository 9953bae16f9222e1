// Package repository provides a generic repository for bun models that runs
// on an ORM's connection, so repository calls join the ORM's transaction.
package repository
