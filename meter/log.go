package meter

import (
	"go.uber.org/zap"

	"github.com/ineyio/quoterouter"
)

// LogMeter logs resolution events using zap.
type LogMeter struct {
	Logger *zap.Logger
}

var _ quoterouter.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, zap.L() is used.
func NewLogMeter(logger *zap.Logger) *LogMeter {
	if logger == nil {
		logger = zap.L()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnLiveCall(e quoterouter.LiveCallEvent) {
	fields := []zap.Field{
		zap.String("request_id", e.RequestID),
		zap.String("provider", e.Provider),
		zap.String("service", string(e.Service)),
		zap.String("tier", string(e.Tier)),
		zap.Bool("metered", e.Metered),
		zap.Int64("duration_ms", e.Duration.Milliseconds()),
	}
	if e.Success {
		m.Logger.Info("live_call", append(fields, zap.Int("quotes", e.Quotes))...)
		return
	}
	m.Logger.Warn("live_call_error", append(fields, zap.Error(e.Error))...)
}

func (m *LogMeter) OnResolve(e quoterouter.ResolveEvent) {
	path := make([]string, len(e.Path))
	for i, s := range e.Path {
		path[i] = string(s)
	}
	notices := make([]string, len(e.Notices))
	for i, n := range e.Notices {
		notices[i] = string(n)
	}

	fields := []zap.Field{
		zap.String("request_id", e.RequestID),
		zap.String("fingerprint", e.Fingerprint.String()),
		zap.String("service", string(e.Service)),
		zap.String("tier", string(e.Tier)),
		zap.String("provenance", string(e.Provenance)),
		zap.Bool("degraded", e.Degraded),
		zap.Strings("path", path),
		zap.Strings("notices", notices),
		zap.Int64("duration_ms", e.Duration.Milliseconds()),
	}
	if e.CacheWriteErr != nil {
		fields = append(fields, zap.NamedError("cache_write_error", e.CacheWriteErr))
	}
	if e.EstimateErr != nil {
		fields = append(fields, zap.NamedError("estimate_error", e.EstimateErr))
	}

	if e.Degraded || e.CacheWriteErr != nil {
		m.Logger.Warn("resolve", fields...)
		return
	}
	m.Logger.Info("resolve", fields...)
}
