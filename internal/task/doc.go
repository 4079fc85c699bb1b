// Package task runs queued evaluation tasks in the background.
//
// A Poller wakes on a fixed interval, picks the oldest queued task of its
// type, claims it with a compare-and-swap on its status and hands it to a
// single-worker WorkerPool. The pool dispatches through a Registry to the
// Handler for the task's type; for evaluation tasks that is the Processor,
// which walks the task's items in id order, skips items that already have a
// result, evaluates the rest and records progress after every item.
//
// Cancellation is cooperative and observed between items. A worker that
// stops mid-task leaves the task processing; the next poller to find it stale
// resumes it, and stored results make that resume idempotent.
package task
