package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackResolvesFromProduce(t *testing.T) {
	t.Parallel()
	tr := New()

	resp := tr.Track(context.Background(), "r1", func(_ context.Context) (Response, bool, error) {
		return Response{Status: StatusSuccess, Value: 42}, true, nil
	}, time.Second)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, 42, resp.Value)
	assert.Equal(t, 0, tr.Pending(), "requestID must be cleaned up after resolution")
}

func TestTrackResolvesExactlyOnceViaCompleteExternally(t *testing.T) {
	t.Parallel()
	tr := New()

	started := make(chan struct{})
	resultCh := make(chan Response, 1)
	go func() {
		resultCh <- tr.Track(context.Background(), "r2", func(_ context.Context) (Response, bool, error) {
			close(started)
			<-time.After(50 * time.Millisecond)
			return Response{}, false, nil // completion arrives externally instead
		}, 5*time.Second)
	}()

	<-started
	require.NoError(t, tr.CompleteExternally("r2", Response{Status: StatusSuccess, Value: "external"}))

	resp := <-resultCh
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "external", resp.Value)

	// A second external completion after resolution must be a harmless no-op.
	assert.NoError(t, tr.CompleteExternally("r2", Response{Status: StatusError}))
}

func TestCompleteExternallyUnknownIDIsNoOp(t *testing.T) {
	t.Parallel()
	tr := New()
	assert.NoError(t, tr.CompleteExternally("missing", Response{Status: StatusSuccess}))
}

func TestTrackTimesOut(t *testing.T) {
	t.Parallel()
	tr := New()

	resp := tr.Track(context.Background(), "r3", func(ctx context.Context) (Response, bool, error) {
		<-ctx.Done()
		return Response{}, false, nil
	}, 10*time.Millisecond)

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Message, "timed out")
}

func TestTrackCancellation(t *testing.T) {
	t.Parallel()
	tr := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Response, 1)
	go func() {
		done <- tr.Track(ctx, "r4", func(ctx context.Context) (Response, bool, error) {
			<-ctx.Done()
			return Response{}, false, nil
		}, time.Minute)
	}()

	cancel()
	resp := <-done
	assert.Equal(t, StatusCancel, resp.Status)
}

func TestPendingIDsSnapshot(t *testing.T) {
	t.Parallel()
	tr := New()

	release := make(chan struct{})
	go tr.Track(context.Background(), "r5", func(_ context.Context) (Response, bool, error) {
		<-release
		return Response{Status: StatusSuccess}, true, nil
	}, time.Minute)

	require.Eventually(t, func() bool {
		return tr.Pending() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"r5"}, tr.PendingIDs())
	close(release)
}
