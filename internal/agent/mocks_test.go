// File: internal/agent/mocks_test.go
package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// -- Model Client Mock --

// MockModelClient mocks the schemas.ModelClient interface consumed by the
// control loop.
type MockModelClient struct {
	mock.Mock
}

// CreateMessage mocks one model turn.
func (m *MockModelClient) CreateMessage(ctx context.Context, req schemas.MessageRequest) (*schemas.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.MessageResponse), args.Error(1)
}

// Close mocks transport teardown.
func (m *MockModelClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Tool Runner Mock --

// MockToolRunner mocks the ToolRunner boundary so loop tests can script tool
// outcomes.
type MockToolRunner struct {
	mock.Mock
}

// Execute mocks one tool action.
func (m *MockToolRunner) Execute(ctx context.Context, toolUse schemas.ToolUse) (*schemas.ToolResult, error) {
	args := m.Called(ctx, toolUse)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ToolResult), args.Error(1)
}

// Stats mocks the counter snapshot.
func (m *MockToolRunner) Stats() schemas.ToolStats {
	args := m.Called()
	return args.Get(0).(schemas.ToolStats)
}

// -- Screenshotter Mock --

// MockScreenshotter mocks the capture pipeline boundary.
type MockScreenshotter struct {
	mock.Mock
}

// Capture mocks one screenshot.
func (m *MockScreenshotter) Capture(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
