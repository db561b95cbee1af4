package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for domain.Channel. Start blocks until ctx
// is done, like the real channels.
type mockChannel struct {
	id       string
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	stopErr  error

	mu      sync.Mutex
	sent    []domain.OutboundMessage
	handler func(domain.InboundMessage)
}

func (m *mockChannel) ID() string { return m.id }

func (m *mockChannel) Start(ctx context.Context) error {
	m.started.Store(true)
	if m.startErr != nil {
		return m.startErr
	}
	<-ctx.Done()
	return nil
}

func (m *mockChannel) Stop(_ context.Context) error {
	m.stopped.Store(true)
	return m.stopErr
}

func (m *mockChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockChannel) SendTyping(context.Context, string) error { return nil }

func (m *mockChannel) OnMessage(handler func(domain.InboundMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *mockChannel) Status() domain.ChannelStatus {
	running := m.started.Load() && !m.stopped.Load()
	return domain.ChannelStatus{ChannelID: m.id, Connected: running, Running: running}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.Register(&mockChannel{id: "whatsapp"}))

	got, ok := reg.Get("whatsapp")
	require.True(t, ok)
	assert.Equal(t, "whatsapp", got.ID())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	reg := NewRegistry(testLogger())
	first := &mockChannel{id: "whatsapp"}
	require.NoError(t, reg.Register(first))

	err := reg.Register(&mockChannel{id: "whatsapp"})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "whatsapp")

	got, _ := reg.Get("whatsapp")
	assert.Same(t, first, got)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_ListSorted(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "whatsapp"})
	reg.Register(&mockChannel{id: "gateway"})

	assert.Equal(t, []string{"gateway", "whatsapp"}, reg.List())
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_Status(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "whatsapp"})

	statuses := reg.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "whatsapp", statuses[0].ChannelID)
	assert.False(t, statuses[0].Running)
}

func TestRegistry_StartStopWait(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch1 := &mockChannel{id: "whatsapp"}
	ch2 := &mockChannel{id: "other"}
	reg.Register(ch1)
	reg.Register(ch2)

	ctx, cancel := context.WithCancel(context.Background())
	reg.StartAll(ctx)
	assert.Eventually(t, func() bool { return ch1.started.Load() && ch2.started.Load() }, time.Second, 5*time.Millisecond)

	reg.StopAll(context.Background())
	assert.True(t, ch1.stopped.Load())
	assert.True(t, ch2.stopped.Load())

	cancel()
	done := make(chan struct{})
	go func() {
		reg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("channels did not return after cancel")
	}
}

func TestRegistry_StartError(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch := &mockChannel{id: "broken", startErr: assert.AnError}
	reg.Register(ch)

	reg.StartAll(context.Background())
	reg.Wait()
	assert.True(t, ch.started.Load())
}

func TestRegistry_StopError(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch := &mockChannel{id: "broken", stopErr: assert.AnError}
	reg.Register(ch)

	reg.StopAll(context.Background())
	assert.True(t, ch.stopped.Load())
}
