// Package events carries task lifecycle notifications from the pipeline to
// optional observers.
//
// The task package emits a TaskEvent whenever a task is claimed, makes
// progress, or reaches a terminal state. Handlers registered with an
// InMemoryEventEmitter receive every event; a failing handler is logged and
// never affects task processing.
package events
