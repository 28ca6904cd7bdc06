package notify

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

// MockNotifier is a mock implementation of monitor.Notifier for testing.
type MockNotifier struct {
	mock.Mock
}

// NotifyBecameAvailable is the mock implementation of the NotifyBecameAvailable method.
func (m *MockNotifier) NotifyBecameAvailable(ctx context.Context, target monitor.Target) error {
	args := m.Called(ctx, target)
	return args.Error(0) //nolint:wrapcheck
}
