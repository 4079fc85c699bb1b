// Package store defines the persistence contracts of the evaluation pipeline:
// tasks with conditional status transitions, the ordered items of a task, and
// one result per item. Implementations live under internal/platform.
package store
