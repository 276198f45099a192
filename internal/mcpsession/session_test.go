package mcpsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/changebus"
	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
)

type recordingNotifier struct {
	mu        sync.Mutex
	tools     int
	prompts   int
	resources int
}

func (r *recordingNotifier) NotifyToolListChanged(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools++
	return nil
}

func (r *recordingNotifier) NotifyPromptListChanged(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts++
	return nil
}

func (r *recordingNotifier) NotifyResourceListChanged(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources++
	return nil
}

func (r *recordingNotifier) counts() (tools, prompts, resources int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tools, r.prompts, r.resources
}

func newLocalStrategy(t *testing.T) strategy.Strategy {
	t.Helper()
	reg := registry.New(zap.NewNop())
	s, err := strategy.New("local", reg, "")
	require.NoError(t, err)
	return s
}

func TestSessionForwardsApprovedCapabilityChanges(t *testing.T) {
	t.Parallel()
	bus := changebus.New()
	notifier := &recordingNotifier{}
	sess := New(context.Background(), "", "", "", bus, newLocalStrategy(t), notifier, zap.NewNop())
	defer sess.Stop()

	require.NotEmpty(t, sess.State().SessionID, "New must generate a session id when one isn't supplied")

	bus.Publish(changebus.Event{Kind: changebus.KindTools, SourceConnectionID: "c1"})
	bus.Publish(changebus.Event{Kind: changebus.KindPrompts, SourceConnectionID: "c1"})
	bus.Publish(changebus.Event{Kind: changebus.KindResources, SourceConnectionID: "c1"})

	require.Eventually(t, func() bool {
		tools, prompts, resources := notifier.counts()
		return tools == 1 && prompts == 1 && resources == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSessionCancelPropagatesToContext(t *testing.T) {
	t.Parallel()
	bus := changebus.New()
	sess := New(context.Background(), "sid", "", "", bus, newLocalStrategy(t), &recordingNotifier{}, zap.NewNop())
	defer sess.Stop()

	sess.Cancel()

	select {
	case <-sess.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("expected Cancel to cancel the session context")
	}
}

func TestSessionStopIsIdempotentAndUnsubscribes(t *testing.T) {
	t.Parallel()
	bus := changebus.New()
	sess := New(context.Background(), "sid", "", "", bus, newLocalStrategy(t), &recordingNotifier{}, zap.NewNop())

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 3 }, time.Second, 5*time.Millisecond)

	sess.Stop()
	assert.Equal(t, 0, bus.SubscriberCount())
	assert.NotPanics(t, func() { sess.Stop() })
}

func TestSessionUsesSuppliedIdentity(t *testing.T) {
	t.Parallel()
	bus := changebus.New()
	sess := New(context.Background(), "fixed-id", "tok", "conn-1", bus, newLocalStrategy(t), &recordingNotifier{}, zap.NewNop())
	defer sess.Stop()

	state := sess.State()
	assert.Equal(t, "fixed-id", state.SessionID)
	assert.Equal(t, "tok", state.Token)
	assert.Equal(t, "conn-1", state.ConnectionID)
}
