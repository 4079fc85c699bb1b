// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx stdlib driver. Status changes are conditional
// UPDATE statements so that concurrent workers never both win a transition.
// The schema ships as embedded goose migrations.
package postgres
