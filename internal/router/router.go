// Package router implements the plugin router (C5): the single entry
// point that invokes a method on a selected plugin connection with
// retry/timeout and surfaces structured errors.
package router

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
	"github.com/roadrunner-plugins/mcp-bridge/internal/wire"
)

// Retry policy constants.
const (
	MaxRetries        = 10
	RetryDelay        = 2500 * time.Millisecond // no connection available
	TimeoutRetryDelay = 1 * time.Second         // call timed out
	ErrorRetryDelay   = 50 * time.Millisecond   // any other dispatch error
)

// Status mirrors the Response envelope's status field.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// Response is the result of one Invoke call.
type Response struct {
	RequestID string
	Status    Status
	Message   string
	Payload   *wire.Frame
}

// Dispatcher sends a unary request to a specific connection and waits for
// its reply, or returns an error (including context.DeadlineExceeded on a
// per-call timeout, and the caller's ctx.Err() on cancellation).
type Dispatcher interface {
	Dispatch(ctx context.Context, connID, method string, payload any) (*wire.Frame, error)
}

// Router ties the registry, strategy, and dispatcher together.
type Router struct {
	strategy   strategy.Strategy
	registry   *registry.Registry
	dispatcher Dispatcher
	log        *zap.Logger

	// pluginTimeout is the per-call deadline; zero means unbounded.
	pluginTimeout time.Duration
}

// New constructs a Router.
func New(strat strategy.Strategy, reg *registry.Registry, dispatcher Dispatcher, pluginTimeout time.Duration, log *zap.Logger) *Router {
	return &Router{
		strategy:      strat,
		registry:      reg,
		dispatcher:    dispatcher,
		log:           log,
		pluginTimeout: pluginTimeout,
	}
}

// Invoke runs the retry loop for one call of method,
// scoped to hubType, authenticated by token (may be empty), cancellable via
// ctx. requestID is used only for the returned Response and diagnostics.
func (r *Router) Invoke(ctx context.Context, hubType registry.HubType, requestID, method string, token string, payload any) Response {
	for retryIndex := 0; retryIndex < MaxRetries; retryIndex++ {
		if err := ctx.Err(); err != nil {
			return Response{RequestID: requestID, Status: StatusError, Message: "cancelled: " + err.Error()}
		}

		connID, ok := r.strategy.ResolveConnectionID(hubType, token, retryIndex)
		if !ok {
			if !r.sleep(ctx, RetryDelay) {
				return r.cancelledResponse(requestID)
			}
			continue
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if r.pluginTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.pluginTimeout)
		}
		frame, err := r.dispatcher.Dispatch(callCtx, connID, method, payload)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			r.registry.MarkSuccess(hubType, connID)
			return Response{RequestID: requestID, Status: StatusSuccess, Payload: frame}
		}

		if callCtx.Err() == context.DeadlineExceeded {
			if r.log != nil {
				r.log.Warn("plugin call timed out, retrying",
					zap.String("method", method), zap.String("connection_id", connID))
			}
			if !r.sleep(ctx, TimeoutRetryDelay) {
				return r.cancelledResponse(requestID)
			}
			continue
		}

		if r.log != nil {
			r.log.Debug("plugin call failed, retrying",
				zap.String("method", method), zap.String("connection_id", connID), zap.Error(err))
		}
		if !r.sleep(ctx, ErrorRetryDelay) {
			return r.cancelledResponse(requestID)
		}
	}

	return Response{
		RequestID: requestID,
		Status:    StatusError,
		Message:   "no plugin available after " + strconv.Itoa(MaxRetries) + " attempts",
	}
}

func (r *Router) cancelledResponse(requestID string) Response {
	return Response{RequestID: requestID, Status: StatusError, Message: "cancelled"}
}

// sleep waits for d or ctx cancellation, returning false if ctx won the race.
func (r *Router) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
