package meter

import (
	"sync"

	"github.com/ineyio/quoterouter"
)

// Recorder keeps every event in memory. Useful in tests and for the
// provenance counters behind the usage endpoint.
type Recorder struct {
	mu        sync.Mutex
	liveCalls []quoterouter.LiveCallEvent
	resolves  []quoterouter.ResolveEvent
}

var _ quoterouter.Meter = (*Recorder)(nil)

func (r *Recorder) OnLiveCall(e quoterouter.LiveCallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveCalls = append(r.liveCalls, e)
}

func (r *Recorder) OnResolve(e quoterouter.ResolveEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves = append(r.resolves, e)
}

// LiveCalls returns a copy of the recorded live-call events.
func (r *Recorder) LiveCalls() []quoterouter.LiveCallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]quoterouter.LiveCallEvent(nil), r.liveCalls...)
}

// Resolves returns a copy of the recorded resolve events.
func (r *Recorder) Resolves() []quoterouter.ResolveEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]quoterouter.ResolveEvent(nil), r.resolves...)
}

// ByProvenance counts resolutions per provenance.
func (r *Recorder) ByProvenance() map[quoterouter.Provenance]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[quoterouter.Provenance]int)
	for _, e := range r.resolves {
		out[e.Provenance]++
	}
	return out
}

// Multi fans events out to several meters.
type Multi []quoterouter.Meter

var _ quoterouter.Meter = Multi(nil)

func (m Multi) OnLiveCall(e quoterouter.LiveCallEvent) {
	for _, mm := range m {
		mm.OnLiveCall(e)
	}
}

func (m Multi) OnResolve(e quoterouter.ResolveEvent) {
	for _, mm := range m {
		mm.OnResolve(e)
	}
}
