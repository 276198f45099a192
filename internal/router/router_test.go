package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
	"github.com/roadrunner-plugins/mcp-bridge/internal/wire"
)

type fakeDispatcher struct {
	dispatch func(ctx context.Context, connID, method string, payload any) (*wire.Frame, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, connID, method string, payload any) (*wire.Frame, error) {
	return f.dispatch(ctx, connID, method, payload)
}

func newRouter(t *testing.T, disp Dispatcher, pluginTimeout time.Duration) (*Router, *registry.Registry) {
	t.Helper()
	reg := registry.New(zap.NewNop())
	strat, err := strategy.New("local", reg, "")
	require.NoError(t, err)
	return New(strat, reg, disp, pluginTimeout, zap.NewNop()), reg
}

func TestInvokeSuccessMarksConnection(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{dispatch: func(_ context.Context, connID, _ string, _ any) (*wire.Frame, error) {
		return &wire.Frame{ID: "resp-1"}, nil
	}}
	r, reg := newRouter(t, disp, 0)
	reg.Add(registry.McpServerHub, "c1", "")

	resp := r.Invoke(context.Background(), registry.McpServerHub, "req-1", "RunListTool", "", nil)
	assert.Equal(t, StatusSuccess, resp.Status)
	require.NotNil(t, resp.Payload)
	assert.Equal(t, "resp-1", resp.Payload.ID)
}

func TestInvokeExhaustsRetriesOnPersistentError(t *testing.T) {
	t.Parallel()
	calls := 0
	disp := &fakeDispatcher{dispatch: func(_ context.Context, _, _ string, _ any) (*wire.Frame, error) {
		calls++
		return nil, errors.New("plugin exploded")
	}}
	r, reg := newRouter(t, disp, 0)
	reg.Add(registry.McpServerHub, "c1", "")

	resp := r.Invoke(context.Background(), registry.McpServerHub, "req-2", "RunListTool", "", nil)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "req-2", resp.RequestID)
	assert.Equal(t, MaxRetries, calls)
}

func TestInvokeNoConnectionAvailableRetriesThenCancels(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{dispatch: func(context.Context, string, string, any) (*wire.Frame, error) {
		t.Fatal("Dispatch must not be called when no connection is available")
		return nil, nil
	}}
	r, _ := newRouter(t, disp, 0) // no connection registered

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	resp := r.Invoke(ctx, registry.McpServerHub, "req-3", "RunListTool", "", nil)
	assert.Equal(t, StatusError, resp.Status)
}

func TestInvokeRespectsAlreadyCancelledContext(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{dispatch: func(context.Context, string, string, any) (*wire.Frame, error) {
		t.Fatal("Dispatch must not be called on an already-cancelled context")
		return nil, nil
	}}
	r, reg := newRouter(t, disp, 0)
	reg.Add(registry.McpServerHub, "c1", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := r.Invoke(ctx, registry.McpServerHub, "req-4", "RunListTool", "", nil)
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Message, "cancelled")
}

func TestInvokeTimesOutAndRetries(t *testing.T) {
	t.Parallel()
	calls := 0
	disp := &fakeDispatcher{dispatch: func(ctx context.Context, _, _ string, _ any) (*wire.Frame, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r, reg := newRouter(t, disp, 5*time.Millisecond)
	reg.Add(registry.McpServerHub, "c1", "")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	resp := r.Invoke(ctx, registry.McpServerHub, "req-5", "RunListTool", "", nil)
	assert.Equal(t, StatusError, resp.Status)
	assert.GreaterOrEqual(t, calls, 1)
}
