package quoterouter

import "time"

// Meter observes resolution events for monitoring/logging.
type Meter interface {
	// OnLiveCall is called after every metered live-provider attempt.
	OnLiveCall(event LiveCallEvent)

	// OnResolve is called once per Resolve, after the result is known.
	OnResolve(event ResolveEvent)
}

// State is a step of the resolution pipeline.
type State string

const (
	StateCheckingCache       State = "checking_cache"
	StateCheckingEntitlement State = "checking_entitlement"
	StateCallingLive         State = "calling_live"
	StateCallingEstimate     State = "calling_estimate"
	StateDone                State = "done"
)

// LiveCallEvent describes the outcome of a live-provider call.
type LiveCallEvent struct {
	RequestID string
	Provider  string
	Service   Service
	Tier      Tier
	Metered   bool
	Success   bool
	Quotes    int
	Duration  time.Duration
	Error     error
}

// ResolveEvent describes a finished resolution.
type ResolveEvent struct {
	RequestID   string
	Fingerprint FingerprintKey
	Service     Service
	Tier        Tier
	Provenance  Provenance
	Degraded    bool
	// Path lists the pipeline states visited, ending in StateDone.
	Path          []State
	Notices       []Notice
	CacheWriteErr error
	EstimateErr   error
	Duration      time.Duration
}

type noopMeter struct{}

func (noopMeter) OnLiveCall(LiveCallEvent) {}
func (noopMeter) OnResolve(ResolveEvent)   {}
