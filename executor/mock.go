package executor

import (
	"context"
	"sync"
)

// MockSignalChannel is a mock implementation of SignalChannel for testing.
type MockSignalChannel struct {
	mu        sync.Mutex
	SendFunc  func(ctx context.Context, signal Signal) error
	SendCalls []Signal
}

// Compile-time check that MockSignalChannel implements SignalChannel.
var _ SignalChannel = (*MockSignalChannel)(nil)

// NewMockSignalChannel creates a new MockSignalChannel with an empty call history.
func NewMockSignalChannel() *MockSignalChannel {
	return &MockSignalChannel{
		SendCalls: make([]Signal, 0),
	}
}

// Send implements the SignalChannel interface.
// It records the signal, then calls SendFunc if set and succeeds otherwise.
func (m *MockSignalChannel) Send(ctx context.Context, signal Signal) error {
	m.mu.Lock()
	m.SendCalls = append(m.SendCalls, signal)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, signal)
	}

	return nil
}

// Calls returns a copy of the recorded signals.
func (m *MockSignalChannel) Calls() []Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Signal(nil), m.SendCalls...)
}

// Reset clears the call history.
func (m *MockSignalChannel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendCalls = make([]Signal, 0)
}
