package execution

import (
	"sync"

	"github.com/getpup/streamcoord/command"
)

// ExecutedCall records one OnExecuted invocation.
type ExecutedCall struct {
	Command command.Command
	Result  command.Result
}

// MockTracer is a test double for Tracer that records every call.
type MockTracer struct {
	mu       sync.Mutex
	Executed []ExecutedCall
	Entries  []string
}

// Compile-time check that MockTracer implements Tracer.
var _ Tracer = (*MockTracer)(nil)

func (m *MockTracer) OnExecuted(cmd command.Command, result command.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = append(m.Executed, ExecutedCall{Command: cmd, Result: result})
}

func (m *MockTracer) OnLogEntry(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, text)
}

// Kinds returns the kinds of the executed commands in reporting order.
func (m *MockTracer) Kinds() []command.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]command.Kind, 0, len(m.Executed))
	for _, c := range m.Executed {
		out = append(out, c.Command.Kind())
	}
	return out
}

// Calls returns a copy of the recorded OnExecuted calls.
func (m *MockTracer) Calls() []ExecutedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedCall(nil), m.Executed...)
}

// MockNotifier is a test double for Notifier that records every call.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []command.Command
}

// Compile-time check that MockNotifier implements Notifier.
var _ Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) OnSent(cmd command.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, cmd)
}

// Count returns the number of recorded calls.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
