package busmock

import "github.com/stretchr/testify/mock"

// ExecutionContext mocks eventbus.ExecutionContext, letting a test assert on
// how many tasks were scheduled without spinning up a real goroutine.
type ExecutionContext struct {
	mock.Mock
}

// Run records the call and, if configured to do so via On(...).Run(...),
// invokes task synchronously.
func (c *ExecutionContext) Run(task func()) {
	c.Called(task)
}

// Close records the call.
func (c *ExecutionContext) Close() {
	c.Called()
}

// SyncExecutionContext is a minimal real (non-mock) ExecutionContext that
// runs every task synchronously and inline, used by tests that want real
// delivery semantics without a goroutine's scheduling nondeterminism.
type SyncExecutionContext struct{}

// Run implements eventbus.ExecutionContext by calling task immediately.
func (SyncExecutionContext) Run(task func()) { task() }

// Close implements eventbus.ExecutionContext as a no-op.
func (SyncExecutionContext) Close() {}
