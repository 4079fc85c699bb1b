// Package logger provides structured logging for the worker.
//
// It builds a log/slog JSON logger from configuration and carries
// request-scoped loggers through context.Context so that every component of
// a task run logs with the same task_id and correlation attributes.
package logger
