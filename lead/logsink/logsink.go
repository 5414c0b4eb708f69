// Package logsink records captured leads as structured log lines, for
// deployments without a follow-up system.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/ineyio/quoterouter"
)

// Sink logs every lead at info level.
type Sink struct {
	logger *zap.Logger
}

var _ quoterouter.LeadCapture = (*Sink)(nil)

// New creates a log sink. A nil logger uses zap.L().
func New(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.L()
	}
	return &Sink{logger: logger.Named("lead")}
}

func (s *Sink) Capture(_ context.Context, lead quoterouter.Lead) error {
	s.logger.Info("lead captured",
		zap.String("lead_id", lead.ID),
		zap.String("request_id", lead.RequestID),
		zap.String("service", string(lead.Request.Service)),
		zap.String("origin", lead.Request.Origin),
		zap.String("destination", lead.Request.Destination),
		zap.String("estimate", lead.Estimate.TotalCost.StringFixed(2)+" "+lead.Estimate.Currency),
		zap.Bool("degraded", lead.Degraded),
		zap.Time("created_at", lead.CreatedAt),
	)
	return nil
}
