// Package migrations generates SQL migration files for the coordinator's
// pipeline and assignment tables on PostgreSQL, MySQL/MariaDB and SQLite.
package migrations
