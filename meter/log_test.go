package meter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ineyio/quoterouter"
	"github.com/ineyio/quoterouter/meter"
)

func TestLogMeter_LiveCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := meter.NewLogMeter(zap.New(core))

	m.OnLiveCall(quoterouter.LiveCallEvent{
		RequestID: "r1", Provider: "carrierapi", Service: quoterouter.ServiceFCL,
		Tier: quoterouter.TierFree, Metered: true, Success: true, Quotes: 2, Duration: 120 * time.Millisecond,
	})
	m.OnLiveCall(quoterouter.LiveCallEvent{
		RequestID: "r2", Provider: "carrierapi", Service: quoterouter.ServiceFCL,
		Error: quoterouter.ErrRateLimited,
	})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "live_call", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(2), entries[0].ContextMap()["quotes"])
	assert.Equal(t, "live_call_error", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestLogMeter_ResolveDegradedIsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := meter.NewLogMeter(zap.New(core))

	m.OnResolve(quoterouter.ResolveEvent{
		RequestID:   "r1",
		Provenance:  quoterouter.ProvenanceEstimated,
		Degraded:    true,
		Path:        []quoterouter.State{quoterouter.StateCheckingCache, quoterouter.StateCallingEstimate, quoterouter.StateDone},
		EstimateErr: errors.New("boom"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "estimated", ctx["provenance"])
	assert.Equal(t, "boom", ctx["estimate_error"])
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := &meter.Recorder{}, &meter.Recorder{}
	m := meter.Multi{a, b, &meter.NoopMeter{}}

	m.OnResolve(quoterouter.ResolveEvent{Provenance: quoterouter.ProvenanceLive})
	m.OnResolve(quoterouter.ResolveEvent{Provenance: quoterouter.ProvenanceCached})
	m.OnResolve(quoterouter.ResolveEvent{Provenance: quoterouter.ProvenanceCached})
	m.OnLiveCall(quoterouter.LiveCallEvent{Success: true})

	for _, r := range []*meter.Recorder{a, b} {
		assert.Len(t, r.Resolves(), 3)
		assert.Len(t, r.LiveCalls(), 1)
		assert.Equal(t, 2, r.ByProvenance()[quoterouter.ProvenanceCached])
		assert.Equal(t, 1, r.ByProvenance()[quoterouter.ProvenanceLive])
	}
}
