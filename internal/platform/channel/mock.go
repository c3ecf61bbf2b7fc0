package channel

import (
	"context"
	"sync"
)

// MockSink records deliveries for tests. If Err is set, Send returns it.
type MockSink struct {
	ChannelName string
	Err         error

	mu    sync.Mutex
	calls []Delivery
}

func NewMockSink(name string) *MockSink {
	return &MockSink{ChannelName: name}
}

func (m *MockSink) Name() string { return m.ChannelName }

func (m *MockSink) Send(_ context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.calls = append(m.calls, d)
	return nil
}

// Calls returns a copy of the recorded deliveries.
func (m *MockSink) Calls() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.calls))
	copy(out, m.calls)
	return out
}
