package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/internal/host"
	"github.com/betbot/vaultgate/internal/ports"
	"github.com/betbot/vaultgate/internal/services"
	"github.com/betbot/vaultgate/internal/strategycore/adapter"
	"github.com/betbot/vaultgate/internal/venue/memvenue"
	"github.com/betbot/vaultgate/pkg/ratelimit"
)

var (
	strategyAddr = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	venueAddr    = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	mgmt         = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000000c04")
)

type testAPI struct {
	handler http.Handler
	ledger  *memvenue.Ledger
	venue   *memvenue.Venue
	now     *uint64
}

func newTestAPI(t *testing.T, threshold int64, unlockTime uint64, token string) *testAPI {
	t.Helper()
	now := uint64(1_000)
	ledger := memvenue.NewLedger()
	venue := memvenue.New(venueAddr, ledger)
	h, err := host.New(host.Config{Management: mgmt, StrategyAddress: strategyAddr}, ledger, nil)
	require.NoError(t, err)
	a, err := adapter.New(adapter.Config{
		Address:             strategyAddr,
		DeploymentThreshold: big.NewInt(threshold),
		UnlockTime:          unlockTime,
	}, adapter.Deps{
		Venue: venue, Asset: ledger, Vault: h,
		Clock: ports.ClockFunc(func(context.Context) (uint64, error) { return now, nil }),
	})
	require.NoError(t, err)
	h.Attach(a)

	j, err := services.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	srv := New(Config{APIToken: token, PingInterval: time.Second}, services.NewVaultService(a, h, j))
	return &testAPI{handler: srv.Router(), ledger: ledger, venue: venue, now: &now}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestAPI_DepositAndStatus(t *testing.T) {
	api := newTestAPI(t, 500_000, 0, "")
	api.ledger.Mint(alice, big.NewInt(600_000))

	rec := api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "100000"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st domain.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.ThresholdMet)
	assert.Equal(t, int64(100_000), st.Idle.Int64())

	rec = api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "500000"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.ThresholdMet)
	assert.Equal(t, int64(0), st.Idle.Int64())
	assert.Equal(t, int64(600_000), st.Deployed.Int64())

	rec = api.do(t, http.MethodGet, "/api/journal?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []services.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)
}

func TestAPI_ErrorMapping(t *testing.T) {
	api := newTestAPI(t, 0, 5_000, "")
	api.ledger.Mint(alice, big.NewInt(1_000))
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "1000"}, "").Code)

	rec := api.do(t, http.MethodPost, "/api/withdraw", withdrawRequest{To: alice.Hex(), Amount: "10"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeExceedsLimit, decodeErr(t, rec).Code)

	rec = api.do(t, http.MethodPost, "/api/unlock-time", unlockTimeRequest{Caller: alice.Hex(), UnlockTime: 1}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/emergency-free", emergencyFreeRequest{Caller: mgmt.Hex(), Amount: "1"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeNotShutdown, decodeErr(t, rec).Code)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/freeze", callerRequest{Caller: mgmt.Hex()}, "").Code)
	rec = api.do(t, http.MethodPost, "/api/unlock-time", unlockTimeRequest{Caller: mgmt.Hex(), UnlockTime: 1}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeFrozen, decodeErr(t, rec).Code)

	rec = api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: "bob", Amount: "1"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "-1"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/journal?limit=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_WithdrawLimitAndUnlock(t *testing.T) {
	api := newTestAPI(t, 0, 5_000, "")
	api.ledger.Mint(alice, big.NewInt(1_000))
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "1000"}, "").Code)

	var lim withdrawLimitResponse
	rec := api.do(t, http.MethodGet, "/api/withdraw-limit/"+alice.Hex(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lim))
	assert.Equal(t, int64(0), lim.Limit.Int64())

	rec = api.do(t, http.MethodPost, "/api/unlock-time", unlockTimeRequest{Caller: mgmt.Hex(), UnlockTime: 0}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/withdraw-limit/"+alice.Hex(), nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lim))
	assert.Equal(t, int64(1_000), lim.Limit.Int64())

	rec = api.do(t, http.MethodPost, "/api/withdraw", withdrawRequest{To: alice.Hex(), Amount: "600"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res host.WithdrawResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(600), res.Paid.Int64())

	rec = api.do(t, http.MethodPost, "/api/report", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep domain.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, int64(400), rep.TotalAssets.Int64())

	rec = api.do(t, http.MethodGet, "/api/withdraw-limit/nope", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_EmergencyAfterShutdown(t *testing.T) {
	api := newTestAPI(t, 0, 1<<40, "")
	api.ledger.Mint(alice, big.NewInt(1_000))
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "1000"}, "").Code)

	rec := api.do(t, http.MethodPost, "/api/shutdown", callerRequest{Caller: alice.Hex()}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/shutdown", callerRequest{Caller: mgmt.Hex()}, "").Code)

	rec = api.do(t, http.MethodPost, "/api/emergency-free", emergencyFreeRequest{Caller: mgmt.Hex(), Amount: "99999"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out emergencyFreeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(1_000), out.Recovered.Int64())

	rec = api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "1"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeShutdown, decodeErr(t, rec).Code)
}

func TestAPI_Token(t *testing.T) {
	api := newTestAPI(t, 0, 0, "s3cret")

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/status", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/status", nil, "wrong").Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/status", nil, "s3cret").Code)
}

func TestAPI_StatusStream(t *testing.T) {
	api := newTestAPI(t, 1_000, 0, "")
	ts := httptest.NewServer(api.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var st domain.Status
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, int64(0), st.Idle.Int64())

	api.ledger.Mint(alice, big.NewInt(250))
	rec := api.do(t, http.MethodPost, "/api/deposit", depositRequest{From: alice.Hex(), Amount: "250"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, int64(250), st.Idle.Int64())
}

func TestAPI_Faucet(t *testing.T) {
	api := newTestAPI(t, 500, 0, "")
	rec := api.do(t, http.MethodPost, "/api/faucet", faucetRequest{To: alice.Hex(), Amount: "10"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ledger := memvenue.NewLedger()
	venue := memvenue.New(venueAddr, ledger)
	h, err := host.New(host.Config{Management: mgmt, StrategyAddress: strategyAddr}, ledger, nil)
	require.NoError(t, err)
	a, err := adapter.New(adapter.Config{Address: strategyAddr, DeploymentThreshold: big.NewInt(500)},
		adapter.Deps{Venue: venue, Asset: ledger, Vault: h})
	require.NoError(t, err)
	h.Attach(a)
	handler := New(Config{Faucet: ledger}, services.NewVaultService(a, h, nil)).Router()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(faucetRequest{To: alice.Hex(), Amount: "700"}))
	req := httptest.NewRequest(http.MethodPost, "/api/faucet", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	bal, err := ledger.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(700), bal.Int64())
}

func TestAPI_WriteRateLimit(t *testing.T) {
	ledger := memvenue.NewLedger()
	venue := memvenue.New(venueAddr, ledger)
	h, err := host.New(host.Config{Management: mgmt, StrategyAddress: strategyAddr}, ledger, nil)
	require.NoError(t, err)
	a, err := adapter.New(adapter.Config{Address: strategyAddr, DeploymentThreshold: big.NewInt(500)},
		adapter.Deps{Venue: venue, Asset: ledger, Vault: h})
	require.NoError(t, err)
	h.Attach(a)

	limits := ratelimit.NewRateLimitManager()
	limits.Register(WriteEndpoint, ratelimit.NewTokenBucket(1, 0))
	api := &testAPI{handler: New(Config{Limits: limits}, services.NewVaultService(a, h, nil)).Router()}

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/report", nil, "").Code)
	rec := api.do(t, http.MethodPost, "/api/report", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decodeErr(t, rec).Code)

	// 读接口不受影响
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/status", nil, "").Code)
}

func TestAPI_Breaker(t *testing.T) {
	api := newTestAPI(t, 0, 0, "")
	rec := api.do(t, http.MethodGet, "/api/breaker", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/breaker/resume", callerRequest{Caller: alice.Hex()}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/breaker/resume", callerRequest{Caller: mgmt.Hex()}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
