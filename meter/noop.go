package meter

import "github.com/ineyio/quoterouter"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ quoterouter.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnLiveCall(quoterouter.LiveCallEvent) {}
func (m *NoopMeter) OnResolve(quoterouter.ResolveEvent)   {}
