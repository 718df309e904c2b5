package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/alanyoungcy/pumpfight/internal/cache/memory"
	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/factory"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
	"github.com/alanyoungcy/pumpfight/internal/metrics"
	"github.com/alanyoungcy/pumpfight/internal/server/middleware"
	"github.com/alanyoungcy/pumpfight/internal/service"
	memstore "github.com/alanyoungcy/pumpfight/internal/store/memory"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000d4")
)

const operatorKey = "op-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()

	svc, err := service.NewLaunchpadService(factory.Params{
		Address:     common.HexToAddress("0x00000000000000000000000000000000000f1647"),
		Operator:    operator,
		Treasury:    common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		CreationFee: fixed.Units(100),
		Defaults: domain.TokenConfig{
			InitialPrice:     fixed.MustParse("0.001"),
			StepSize:         fixed.Units(1000),
			Rule:             domain.Additive(fixed.MustParse("0.0001")),
			GraduationTarget: fixed.Units(1000),
			CreatorShareBps:  500,
			PlatformFeeBps:   250,
			MaxSupply:        fixed.Units(1_000_000),
			AntiRug:          domain.AntiRugConfig{SellCooldown: time.Hour, MaxSellBps: 10_000},
		},
	}, store.Commands(), store.Tokens(), store.Events(), store.Payouts(), store.Audit(), logger)
	require.NoError(t, err)

	m := metrics.New()
	svc.WithBus(memcache.NewBus(100)).WithMetrics(m)

	srv := NewServer(Config{
		Port:               0,
		CORSOrigins:        []string{"*"},
		OperatorAPIKey:     operatorKey,
		RateLimitPerMinute: 1000,
	}, NewHandlers(svc, logger), nil, memcache.NewRateLimiter(), m, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path string, caller *common.Address, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if caller != nil {
		req.Header.Set(middleware.HeaderCallerAddress, caller.Hex())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestLaunchQuoteAndBuy(t *testing.T) {
	ts := newTestServer(t)

	status, created := call(t, ts, http.MethodPost, "/api/tokens", &creator,
		`{"name":"Fight Club","symbol":"fc","fee_paid":"100"}`, nil)
	require.Equal(t, http.StatusCreated, status, created)
	info := created["created"].(map[string]any)
	tokenAddr := info["address"].(string)
	assert.Equal(t, creator.Hex(), info["creator"])

	status, quote := call(t, ts, http.MethodGet, "/api/tokens/"+tokenAddr+"/quote/buy?payment=10", nil, "", nil)
	require.Equal(t, http.StatusOK, status)

	status, receipt := call(t, ts, http.MethodPost, "/api/tokens/"+tokenAddr+"/buy", &alice,
		`{"payment":"10"}`, map[string]string{"Idempotency-Key": "buy-1"})
	require.Equal(t, http.StatusOK, status, receipt)
	buy := receipt["buy"].(map[string]any)
	assert.Equal(t, quote["tokens_out"], buy["tokens_out"])
	assert.Equal(t, "0.5", buy["creator_share"])

	// A retry with the same key is not applied twice.
	status, again := call(t, ts, http.MethodPost, "/api/tokens/"+tokenAddr+"/buy", &alice,
		`{"payment":"10"}`, map[string]string{"Idempotency-Key": "buy-1"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, receipt["seq"], again["seq"])

	status, bal := call(t, ts, http.MethodGet, "/api/tokens/"+tokenAddr+"/balances/"+alice.Hex(), nil, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, buy["tokens_out"], bal["balance"])

	status, events := call(t, ts, http.MethodGet, "/api/events?token="+tokenAddr, nil, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, events["events"])

	status, health := call(t, ts, http.MethodGet, "/api/health", nil, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 2, health["last_seq"])
}

func TestWriteErrorsMapToStatusCodes(t *testing.T) {
	ts := newTestServer(t)

	status, body := call(t, ts, http.MethodPost, "/api/tokens", nil, `{"name":"x","symbol":"x","fee_paid":"100"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["code"])

	status, body = call(t, ts, http.MethodPost, "/api/tokens", &creator, `{"name":"x","symbol":"x","fee_paid":"1"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_payment", body["code"])

	status, body = call(t, ts, http.MethodGet, "/api/tokens/"+alice.Hex()+"/state", nil, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])

	status, body = call(t, ts, http.MethodGet, "/api/tokens/not-an-address/state", nil, "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["code"])
}

func TestOperatorRoutes(t *testing.T) {
	ts := newTestServer(t)

	_, created := call(t, ts, http.MethodPost, "/api/tokens", &creator,
		`{"name":"Fight Club","symbol":"fc","fee_paid":"100"}`, nil)
	tokenAddr := created["created"].(map[string]any)["address"].(string)
	pause := "/api/tokens/" + tokenAddr + "/pause"

	status, _ := call(t, ts, http.MethodPost, pause, &operator, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	auth := map[string]string{"Authorization": "Bearer " + operatorKey}
	status, body := call(t, ts, http.MethodPost, pause, &creator, "", auth)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "unauthorized", body["code"])

	status, _ = call(t, ts, http.MethodPost, pause, &operator, "", auth)
	require.Equal(t, http.StatusOK, status)

	_, state := call(t, ts, http.MethodGet, "/api/tokens/"+tokenAddr+"/state", nil, "", nil)
	assert.Equal(t, "paused", state["phase"])

	status, body = call(t, ts, http.MethodPost, "/api/tokens/"+tokenAddr+"/buy", &alice, `{"payment":"1"}`, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "curve_paused", body["code"])
}

func TestCloseVoteRoute(t *testing.T) {
	ts := newTestServer(t)

	_, created := call(t, ts, http.MethodPost, "/api/tokens", &creator,
		`{"name":"Fight Club","symbol":"fc","fee_paid":"100"}`, nil)
	tokenAddr := created["created"].(map[string]any)["address"].(string)
	votes := "/api/tokens/" + tokenAddr + "/votes"

	status, receipt := call(t, ts, http.MethodPost, votes, &creator,
		`{"topic":"walkout song","options":["a","b"],"duration_seconds":3600}`, nil)
	require.Equal(t, http.StatusCreated, status, receipt)
	pollID := "0"

	status, _ = call(t, ts, http.MethodPost, votes+"/"+pollID+"/close", &alice, "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, ts, http.MethodPost, votes+"/"+pollID+"/close", &creator, "", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := call(t, ts, http.MethodPost, votes+"/"+pollID+"/cast", &alice, `{"option":1}`, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "poll_not_active", body["code"])
}

func TestCurveQuotesWithoutFees(t *testing.T) {
	ts := newTestServer(t)

	_, created := call(t, ts, http.MethodPost, "/api/tokens", &creator,
		`{"name":"Fight Club","symbol":"fc","fee_paid":"100"}`, nil)
	quote := "/api/tokens/" + created["created"].(map[string]any)["address"].(string) + "/quote/"

	status, cost := call(t, ts, http.MethodGet, quote+"cost?tokens=500&fees=false", nil, "", nil)
	require.Equal(t, http.StatusOK, status, cost)
	assert.Equal(t, "0.5", cost["cost"])
	assert.Equal(t, "false", cost["fees"])

	status, back := call(t, ts, http.MethodGet, quote+"buy?payment=0.5&fees=false", nil, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, cost["tokens"], back["tokens_out"])

	_, gross := call(t, ts, http.MethodGet, quote+"cost?tokens=500", nil, "", nil)
	assert.Equal(t, "true", gross["fees"])
	assert.NotEqual(t, cost["cost"], gross["cost"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	call(t, ts, http.MethodGet, "/api/config", nil, "", nil)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "pumpfight_http_requests_total")
}
