// Package domain contains the core entities of the evaluation pipeline: tasks,
// the items that belong to them, and the results produced for each item. It also
// holds the task state machine, independent of any storage or delivery mechanism.
package domain
