package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"CoverPool/internal/bank"
	"CoverPool/internal/oracle"
	"CoverPool/internal/pool"
	"CoverPool/internal/token"
	"CoverPool/internal/treasury"
	"CoverPool/internal/wei"
)

var (
	tOwner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tPool     = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	tTreasury = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	tLP       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tBuyer    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newTestServer(t *testing.T) (*httptest.Server, *pool.Engine) {
	t.Helper()

	b := bank.NewLedger()
	reg := token.NewRegistry(tOwner)
	orc := oracle.NewStore(tOwner)
	tre := treasury.NewLedger(tOwner, tTreasury, b)

	eng, err := pool.NewEngine(pool.Config{
		Owner:    tOwner,
		Address:  tPool,
		Bank:     b,
		Token:    reg,
		Oracle:   orc,
		Treasury: tre,
		Params: pool.Params{
			MaxCoverageBps: 2000,
			PremiumRateBps: 300,
			ProtocolFeeBps: 500,
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := reg.SetInsurancePool(tOwner, tPool); err != nil {
		t.Fatalf("bind pool: %v", err)
	}

	srv := New(Config{
		Engine:   eng,
		Token:    reg,
		Oracle:   orc,
		Treasury: tre,
		Logger:   zerolog.Nop(),
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, eng
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestDepositEndpoint(t *testing.T) {
	ts, eng := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/pool/deposit", map[string]string{
		"caller": tLP.Hex(),
		"amount": wei.FromEther(5).String(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	var body struct {
		Shares string `json:"shares"`
	}
	decodeBody(t, resp, &body)
	if body.Shares != wei.FromEther(5).String() {
		t.Errorf("shares = %s, want 5 ether", body.Shares)
	}
	if eng.TotalAssets().Cmp(wei.FromEther(5)) != 0 {
		t.Errorf("engine totalAssets %s, want 5 ether", eng.TotalAssets())
	}
}

func TestDepositEndpoint_RejectsBadAmount(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/pool/deposit", map[string]string{
		"caller": tLP.Hex(),
		"amount": "not-a-number",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
}

func TestBuyPolicyEndpoint_FullLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/pool/deposit", map[string]string{
		"caller": tLP.Hex(),
		"amount": wei.FromEther(100).String(),
	})
	resp.Body.Close()

	coverage := wei.FromEther(1)
	premium := pool.RequiredPremium(coverage, 300)

	resp = postJSON(t, ts.URL+"/api/v1/policies", map[string]interface{}{
		"caller":           tBuyer.Hex(),
		"coverage":         coverage.String(),
		"duration_seconds": int64(7 * 24 * 3600),
		"premium":          premium.String(),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("buy status %d, want 201", resp.StatusCode)
	}

	var created struct {
		PolicyID uint64 `json:"policy_id"`
		Coverage struct {
			Wei string `json:"wei"`
			ETH string `json:"eth"`
		} `json:"coverage"`
	}
	decodeBody(t, resp, &created)
	if created.PolicyID == 0 {
		t.Fatal("policy id missing")
	}
	if created.Coverage.ETH != "1" {
		t.Errorf("coverage eth = %s, want 1", created.Coverage.ETH)
	}

	// Token minted to the buyer.
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/tokens/%d", ts.URL, created.PolicyID))
	if err != nil {
		t.Fatal(err)
	}
	var tokenBody struct {
		Owner string `json:"owner"`
	}
	decodeBody(t, resp, &tokenBody)
	if tokenBody.Owner != tBuyer.Hex() {
		t.Errorf("token owner %s, want buyer", tokenBody.Owner)
	}

	// Resolve with no outcome set: no payout, policy closes.
	resp = postJSON(t, fmt.Sprintf("%s/api/v1/policies/%d/resolve", ts.URL, created.PolicyID),
		map[string]string{"caller": tOwner.Hex()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d, want 200", resp.StatusCode)
	}
	var resolved struct {
		Payout bool `json:"payout"`
	}
	decodeBody(t, resp, &resolved)
	if resolved.Payout {
		t.Error("payout without oracle outcome")
	}

	// Second resolve conflicts.
	resp = postJSON(t, fmt.Sprintf("%s/api/v1/policies/%d/resolve", ts.URL, created.PolicyID),
		map[string]string{"caller": tOwner.Hex()})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second resolve status %d, want 409", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	ts, eng := newTestServer(t)

	// ZeroValue -> 400.
	resp := postJSON(t, ts.URL+"/api/v1/pool/deposit", map[string]string{
		"caller": tLP.Hex(),
		"amount": "0",
	})
	var e errorBody
	decodeBody(t, resp, &e)
	if resp.StatusCode != http.StatusBadRequest || e.Error != "ZeroValue" {
		t.Errorf("got (%d, %s), want (400, ZeroValue)", resp.StatusCode, e.Error)
	}

	// Unauthorized pause -> 403.
	resp = postJSON(t, ts.URL+"/api/v1/pool/pause", map[string]string{"caller": tLP.Hex()})
	decodeBody(t, resp, &e)
	if resp.StatusCode != http.StatusForbidden || e.Error != "OwnableUnauthorizedAccount" {
		t.Errorf("got (%d, %s), want (403, OwnableUnauthorizedAccount)", resp.StatusCode, e.Error)
	}

	// Unknown policy -> 404.
	resp = postJSON(t, ts.URL+"/api/v1/policies/999/resolve", map[string]string{"caller": tOwner.Hex()})
	decodeBody(t, resp, &e)
	if resp.StatusCode != http.StatusNotFound || e.Error != "PolicyNotFound" {
		t.Errorf("got (%d, %s), want (404, PolicyNotFound)", resp.StatusCode, e.Error)
	}

	// Paused deposit -> 409.
	if err := eng.Pause(tOwner); err != nil {
		t.Fatal(err)
	}
	resp = postJSON(t, ts.URL+"/api/v1/pool/deposit", map[string]string{
		"caller": tLP.Hex(),
		"amount": "1",
	})
	decodeBody(t, resp, &e)
	if resp.StatusCode != http.StatusConflict || e.Error != "EnforcedPause" {
		t.Errorf("got (%d, %s), want (409, EnforcedPause)", resp.StatusCode, e.Error)
	}
}

func TestPoolStateEndpoint(t *testing.T) {
	ts, eng := newTestServer(t)

	if _, err := eng.Deposit(tLP, wei.FromEther(10)); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/v1/pool")
	if err != nil {
		t.Fatal(err)
	}
	var state struct {
		TotalAssets struct {
			Wei string `json:"wei"`
			ETH string `json:"eth"`
		} `json:"total_assets"`
		Paused bool `json:"paused"`
		Params struct {
			PremiumRateBps uint64 `json:"premium_rate_bps"`
		} `json:"params"`
	}
	decodeBody(t, resp, &state)

	if state.TotalAssets.ETH != "10" {
		t.Errorf("total assets eth = %s, want 10", state.TotalAssets.ETH)
	}
	if state.TotalAssets.Wei != wei.FromEther(10).String() {
		t.Errorf("total assets wei = %s, want 10 ether", state.TotalAssets.Wei)
	}
	if state.Paused {
		t.Error("fresh pool reported paused")
	}
	if state.Params.PremiumRateBps != 300 {
		t.Errorf("premium rate = %d, want 300", state.Params.PremiumRateBps)
	}
}

func TestOracleAndParamsEndpoints(t *testing.T) {
	ts, eng := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/oracle/outcomes", map[string]interface{}{
		"caller":    tOwner.Hex(),
		"policy_id": 1,
		"outcome":   true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("set outcome status %d, want 200", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/pool/params", map[string]interface{}{
		"caller":           tOwner.Hex(),
		"max_coverage_bps": 1000,
		"premium_rate_bps": 250,
		"protocol_fee_bps": 400,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("update params status %d, want 200", resp.StatusCode)
	}
	if eng.Params().PremiumRateBps != 250 {
		t.Errorf("engine premium rate = %d, want 250", eng.Params().PremiumRateBps)
	}
}

func TestRenderAmount(t *testing.T) {
	got := renderAmount(big.NewInt(1_500_000_000_000_000_000))
	if got.ETH != "1.5" {
		t.Errorf("eth = %s, want 1.5", got.ETH)
	}
	if got.Wei != "1500000000000000000" {
		t.Errorf("wei = %s", got.Wei)
	}
}

func TestWSHubBroadcast(t *testing.T) {
	hub := NewWSHub(zerolog.Nop(), nil)

	// Broadcasting with no clients must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.BroadcastJSON(WSMessage{Sequence: int64(i), EventType: "LiquidityProvided"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked with no clients")
	}
}
