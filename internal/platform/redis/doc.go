// Package redis mirrors task progress into Redis so dashboards can follow a
// running task without querying Postgres. Postgres stays the source of truth;
// the mirror is best effort.
package redis
