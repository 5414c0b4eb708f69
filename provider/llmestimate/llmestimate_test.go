package llmestimate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/quoterouter"
	"github.com/ineyio/quoterouter/provider/llmestimate"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func airRequest(t *testing.T) quoterouter.QuoteRequest {
	t.Helper()
	req, err := quoterouter.NewQuoteRequest(quoterouter.ServiceAirFreight, "Frankfurt", "Chicago",
		map[string]any{"weight_kg": 320})
	require.NoError(t, err)
	return req
}

func TestEstimate_ParsesModelJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Contains(t, body.Messages[1].Content, "Frankfurt")
			assert.Contains(t, body.Messages[1].Content, "weight_kg")
		}

		_, _ = w.Write([]byte(completion(`{"carrier_name":"Lufthansa Cargo","transit_time":"3-5 days","total_cost":1234.567,"currency":"eur"}`)))
	}))
	defer srv.Close()

	q, err := llmestimate.New(srv.URL, "key", "gpt-4o-mini").Estimate(context.Background(), airRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "Lufthansa Cargo", q.CarrierName)
	assert.Equal(t, "3-5 days", q.TransitTime)
	assert.True(t, q.TotalCost.Equal(decimal.RequireFromString("1234.57")))
	assert.Equal(t, "EUR", q.Currency)
	assert.Equal(t, "llmestimate", q.ServiceProvider)
}

func TestEstimate_StripsCodeFences(t *testing.T) {
	fenced := "```json\n" + `{"carrier_name":"Generic Air","transit_time":"4 days","total_cost":"980","currency":"USD"}` + "\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completion(fenced)))
	}))
	defer srv.Close()

	q, err := llmestimate.New(srv.URL, "", "m").Estimate(context.Background(), airRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "Generic Air", q.CarrierName)
	assert.True(t, q.TotalCost.Equal(decimal.NewFromInt(980)))
}

func TestEstimate_ProseIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completion("Shipping from Frankfurt usually costs around a thousand dollars.")))
	}))
	defer srv.Close()

	_, err := llmestimate.New(srv.URL, "", "m").Estimate(context.Background(), airRequest(t))
	assert.ErrorIs(t, err, quoterouter.ErrMalformedResponse)
}

func TestEstimate_HTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("slow down ", 10)))
	}))
	defer srv.Close()

	_, err := llmestimate.New(srv.URL, "", "m").Estimate(context.Background(), airRequest(t))
	assert.ErrorIs(t, err, quoterouter.ErrRateLimited)
}
