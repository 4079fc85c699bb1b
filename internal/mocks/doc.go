// Package mocks provides test doubles for the pipeline's collaborators.
//
// The stores are in-memory implementations of the store interfaces that
// follow the same conditional-update rules as the Postgres stores, so tests
// of the task package exercise real claim, progress and transition
// semantics. Every method can be overridden through its ...Fn field to inject
// failures:
//
//	tasks := mocks.NewTaskStore()
//	tasks.UpdateProgressFn = func(ctx context.Context, id uuid.UUID, n int) error {
//	    return errors.New("connection reset")
//	}
//
// MockServiceClient scripts the external evaluation services.
package mocks
