// Package migration applies and reverts schema migrations in batches,
// records them in the migrations tracking table and seeds data from SQL
// files. Migrations come from the in-process registry or from YAML files.
package migration
