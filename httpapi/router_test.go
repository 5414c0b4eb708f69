package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/quoterouter"
	"github.com/ineyio/quoterouter/cache"
	"github.com/ineyio/quoterouter/httpapi"
	"github.com/ineyio/quoterouter/provider/mock"
	"github.com/ineyio/quoterouter/quota"
)

func newServer(t *testing.T) (*httptest.Server, *mock.Provider) {
	t.Helper()
	live := mock.New(mock.WithName("carrier"))
	est := mock.New(mock.WithName("estimator"))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	orch, err := quoterouter.NewOrchestrator(quoterouter.DefaultConfig(),
		[]quoterouter.LiveProvider{live}, est,
		quoterouter.WithCacheStore(cache.NewMemoryStore()),
		quoterouter.WithQuotaLedger(quota.NewMemoryLedger()),
		quoterouter.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewRouter(orch))
	t.Cleanup(srv.Close)
	return srv, live
}

func postQuote(t *testing.T, url, tier, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/v1/quotes", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tier != "" {
		req.Header.Set(httpapi.TierHeader, tier)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

const shanghaiRotterdam = `{"service":"fcl","origin":"Shanghai","destination":"Rotterdam","params":{"container":"40HC"}}`

func TestResolveQuote_LiveThenCached(t *testing.T) {
	srv, live := newServer(t)

	resp, out := postQuote(t, srv.URL, "free", shanghaiRotterdam)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "live", out["provenance"])
	assert.EqualValues(t, 49, out["quota_remaining"])

	resp, out = postQuote(t, srv.URL, "free", shanghaiRotterdam)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cached", out["provenance"])
	assert.Equal(t, int64(1), live.CallCount())

	quotes := out["quotes"].([]any)
	require.Len(t, quotes, 1)
	assert.Equal(t, "Maersk", quotes[0].(map[string]any)["carrier_name"])
}

func TestResolveQuote_ProTierIsUnmetered(t *testing.T) {
	srv, _ := newServer(t)

	_, out := postQuote(t, srv.URL, "PRO", shanghaiRotterdam)
	assert.Equal(t, "live", out["provenance"])
	assert.NotContains(t, out, "quota_remaining")
}

func TestResolveQuote_BadInput(t *testing.T) {
	srv, _ := newServer(t)

	resp, out := postQuote(t, srv.URL, "", `{"service":"rail","origin":"A","destination":"B"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", out["error"])

	resp, out = postQuote(t, srv.URL, "", `{"service":"fcl","origin":"","destination":"B"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", out["error"])

	resp, out = postQuote(t, srv.URL, "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", out["error"])
}

func TestUsageAndHealth(t *testing.T) {
	srv, _ := newServer(t)
	postQuote(t, srv.URL, "guest", shanghaiRotterdam)

	resp, err := http.Get(srv.URL + "/v1/usage")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap quoterouter.UsageSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "2026-03", snap.PeriodID)
	assert.Equal(t, 1, snap.Cache.Active)
	require.Len(t, snap.Quotas, 2)
	assert.Equal(t, "free", snap.Quotas[0].TierKey)
	assert.Equal(t, int64(0), snap.Quotas[0].CallsUsed)
	assert.Equal(t, "guest", snap.Quotas[1].TierKey)
	assert.Equal(t, int64(1), snap.Quotas[1].CallsUsed)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestHousekeeping(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Post(srv.URL+"/v1/housekeeping", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report quoterouter.HousekeepingReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 0, report.CachePurged)
}

func TestNotFound(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/v1/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
