package quoterouter_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	qr "github.com/ineyio/quoterouter"
)

type flakyCapture struct {
	attempts atomic.Int32
	failFor  int32
	err      error
}

func (c *flakyCapture) Capture(context.Context, qr.Lead) error {
	if n := c.attempts.Add(1); n <= c.failFor {
		return c.err
	}
	return nil
}

func sampleLead(t *testing.T) qr.Lead {
	t.Helper()
	return qr.Lead{
		RequestID: "req-1",
		Request:   mustRequest(t, qr.ServiceFCL, "Shanghai", "Rotterdam", nil),
		Estimate:  estimateQuote(),
	}
}

func TestLeadDispatcher_RetriesTransientFailures(t *testing.T) {
	capture := &flakyCapture{failFor: 2, err: qr.ErrProviderUnavailable}
	d := qr.NewLeadDispatcher(capture, qr.WithLeadBackoff(time.Millisecond))
	d.Start(context.Background())

	assert.True(t, d.Dispatch(sampleLead(t)))
	d.Close()

	assert.Equal(t, int32(3), capture.attempts.Load())
}

func TestLeadDispatcher_StopsOnFatalError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	capture := &flakyCapture{failFor: 10, err: qr.ErrAuthFailed}
	d := qr.NewLeadDispatcher(capture,
		qr.WithLeadBackoff(time.Millisecond),
		qr.WithLeadLogger(zap.New(core)),
	)
	d.Start(context.Background())

	d.Dispatch(sampleLead(t))
	d.Close()

	assert.Equal(t, int32(1), capture.attempts.Load())
	entries := logs.FilterMessage("lead capture failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestLeadDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	capture := &flakyCapture{failFor: 10, err: errors.New("timeout")}
	d := qr.NewLeadDispatcher(capture,
		qr.WithLeadBackoff(time.Millisecond),
		qr.WithLeadMaxAttempts(4),
	)
	d.Start(context.Background())

	d.Dispatch(sampleLead(t))
	d.Close()

	assert.Equal(t, int32(4), capture.attempts.Load())
}

func TestLeadDispatcher_AssignsIDAndTimestamp(t *testing.T) {
	capture := &leadRecorder{}
	d := qr.NewLeadDispatcher(capture, qr.WithLeadClock(func() time.Time { return t0 }))
	d.Start(context.Background())

	d.Dispatch(sampleLead(t))
	d.Dispatch(sampleLead(t))
	d.Close()

	leads := capture.Leads()
	require.Len(t, leads, 2)
	assert.NotEmpty(t, leads[0].ID)
	assert.NotEqual(t, leads[0].ID, leads[1].ID)
	assert.Equal(t, t0, leads[0].CreatedAt)
}

type blockingCapture struct {
	release chan struct{}
}

func (c *blockingCapture) Capture(ctx context.Context, _ qr.Lead) error {
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return nil
}

func TestLeadDispatcher_DropsWhenQueueFull(t *testing.T) {
	capture := &blockingCapture{release: make(chan struct{})}
	d := qr.NewLeadDispatcher(capture, qr.WithLeadQueueSize(1), qr.WithLeadWorkers(1))

	// Not started: the queue holds one lead and rejects the next.
	assert.True(t, d.Dispatch(sampleLead(t)))
	assert.False(t, d.Dispatch(sampleLead(t)))

	d.Start(context.Background())
	close(capture.release)
	d.Close()
}

func TestLeadDispatcher_RejectsAfterClose(t *testing.T) {
	d := qr.NewLeadDispatcher(&leadRecorder{})
	d.Start(context.Background())
	d.Close()
	d.Close()

	assert.False(t, d.Dispatch(sampleLead(t)))
}
