// Package migrations generates SQL migration files for the document table used
// by the SQL document store, for PostgreSQL, MySQL/MariaDB, and SQLite databases.
package migrations
