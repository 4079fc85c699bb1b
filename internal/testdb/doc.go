// Package testdb provides database fixtures for integration tests.
//
// Open connects to DATABASE_URL when it is set and otherwise starts a
// throwaway Postgres container with testcontainers-go. Either way the
// embedded migrations are applied once per test binary, and Reset truncates
// every table so tests start from an empty schema.
package testdb
