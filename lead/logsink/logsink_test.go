package logsink_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ineyio/quoterouter"
	"github.com/ineyio/quoterouter/lead/logsink"
)

func TestCapture_LogsLead(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := logsink.New(zap.New(core))

	err := sink.Capture(context.Background(), quoterouter.Lead{
		ID:        "01HZX",
		RequestID: "req-1",
		Request:   quoterouter.QuoteRequest{Service: quoterouter.ServiceFCL, Origin: "Shanghai", Destination: "Rotterdam"},
		Estimate:  quoterouter.Quote{TotalCost: decimal.NewFromInt(2500), Currency: "USD"},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("lead captured").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "01HZX", ctx["lead_id"])
	assert.Equal(t, "2500.00 USD", ctx["estimate"])
	assert.Equal(t, "lead", entries[0].LoggerName)
}
