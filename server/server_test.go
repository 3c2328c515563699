package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/execution"
	"github.com/web3guy0/tradeguard/monitor"
	"github.com/web3guy0/tradeguard/risk"
	"github.com/web3guy0/tradeguard/types"
	"github.com/web3guy0/tradeguard/wallet"
)

const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	allowedAddr = "0xAAA0000000000000000000000000000000000001"
	otherAddr   = "0xBBB0000000000000000000000000000000000002"
)

type stubChain struct{}

func (stubChain) Balance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	return decimal.NewFromInt(100), nil
}

func (stubChain) TokenBalance(ctx context.Context, token, holder common.Address, decimals int32) (decimal.Decimal, error) {
	return decimal.NewFromInt(1000), nil
}

func (stubChain) FeePrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (stubChain) EstimateGas(ctx context.Context, from, to common.Address, value *big.Int, payload []byte) (uint64, error) {
	return 21000, nil
}

func (stubChain) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return 0, nil
}

func (stubChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(137), nil
}

func (stubChain) Submit(ctx context.Context, tx *ethtypes.Transaction) (string, error) {
	return tx.Hash().Hex(), nil
}

func (stubChain) Status(ctx context.Context, txRef string) (types.TxStatus, error) {
	return types.TxPending, nil
}

func (stubChain) WaitForConfirmation(ctx context.Context, txRef string, timeout time.Duration) (types.TxStatus, error) {
	return types.TxConfirmed, nil
}

func (stubChain) NetworkInfo(ctx context.Context) (types.NetworkInfo, error) {
	return types.NetworkInfo{ChainID: 137, LatestBlock: 7}, nil
}

type stubFeed struct{}

func (stubFeed) FetchRecentActivity(ctx context.Context, address string, limit int) ([]types.ObservedTrade, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gateway := risk.NewGateway(risk.Config{
		MaxTradeAmount:   decimal.NewFromInt(10),
		MaxDailyVolume:   decimal.NewFromInt(100),
		MaxHourlyTrades:  100,
		MaxDailyTrades:   100,
		AllowedAddresses: []string{allowedAddr},
	}, nil)

	signer, err := wallet.NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}

	convert := func(q decimal.Decimal) (decimal.Decimal, error) {
		return q.Div(decimal.NewFromInt(2000)), nil
	}
	exec := execution.NewExecutor(gateway, signer, stubChain{}, convert, execution.Config{
		BetContract:   common.HexToAddress(allowedAddr),
		MarketMaker:   common.HexToAddress(otherAddr),
		QuoteToken:    common.HexToAddress(otherAddr),
		QuoteDecimals: 6,
	})

	cfg := monitor.DefaultConfig()
	cfg.PollInterval = time.Hour
	mon := monitor.New(cfg, exec, stubFeed{})

	srv := httptest.NewServer(New(":0", gateway, exec, mon).Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(mon.Stop)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) (kind, message string) {
	t.Helper()
	defer resp.Body.Close()
	var body struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.Kind, body.Message
}

func TestExecuteEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/trade/execute", map[string]interface{}{
		"destination": allowedAddr,
		"value":       "1.5",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result types.TradeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.TxRef == "" || result.Status != types.TxPending {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestExecuteMissingDestination(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/trade/execute", map[string]interface{}{"value": "1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	kind, _ := decodeError(t, resp)
	if kind != "validation" {
		t.Errorf("kind = %q, want validation", kind)
	}
}

func TestExecuteRiskRejectionMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/trade/execute", map[string]interface{}{
		"destination": otherAddr,
		"value":       "1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	kind, message := decodeError(t, resp)
	if kind != "risk_rejected" {
		t.Errorf("kind = %q, want risk_rejected", kind)
	}
	if message == "" {
		t.Error("message should carry the rejection reason")
	}
}

func TestAssessEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/risk/assess", map[string]interface{}{
		"destination": allowedAddr,
		"value":       "0.5",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var decision types.Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		t.Fatal(err)
	}
	if !decision.Approved {
		t.Errorf("expected approval, got %+v", decision)
	}
}

func TestLimitsRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/risk/limits",
		bytes.NewReader([]byte(`{"max_trade_amount":"25"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/api/risk/limits")
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()
	var limits types.RiskLimits
	if err := json.NewDecoder(getResp.Body).Decode(&limits); err != nil {
		t.Fatal(err)
	}
	if !limits.MaxTradeAmount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("max trade amount = %s, want 25", limits.MaxTradeAmount)
	}
}

func TestInvalidLimitsRejected(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/risk/limits",
		bytes.NewReader([]byte(`{"max_daily_volume":"-5"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWhaleEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/whales", map[string]interface{}{
		"address":           allowedAddr,
		"display_name":      "smart money",
		"position_fraction": "0.03",
		"enabled":           true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status = %d, want 200", resp.StatusCode)
	}

	listResp, err := http.Get(srv.URL + "/api/whales")
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var whales []types.WhaleConfig
	if err := json.NewDecoder(listResp.Body).Decode(&whales); err != nil {
		t.Fatal(err)
	}
	if len(whales) != 1 || whales[0].DisplayName != "smart money" {
		t.Errorf("whales = %+v", whales)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/whales/"+allowedAddr, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", delResp.StatusCode)
	}

	// Deleting again is a 400: unknown whale.
	req2, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/whales/"+allowedAddr, nil)
	delResp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatal(err)
	}
	delResp2.Body.Close()
	if delResp2.StatusCode != http.StatusBadRequest {
		t.Errorf("second delete status = %d, want 400", delResp2.StatusCode)
	}
}

func TestMonitorLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/monitor/start", nil)
	defer resp.Body.Close()
	var status types.MonitorStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if !status.Running {
		t.Error("monitor should report running after start")
	}

	stopResp := postJSON(t, srv.URL+"/api/monitor/stop", nil)
	defer stopResp.Body.Close()
	if err := json.NewDecoder(stopResp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Running {
		t.Error("monitor should report stopped after stop")
	}
}

func TestHealthAndStatus(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	statusResp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer statusResp.Body.Close()
	var summary types.TradingSummary
	if err := json.NewDecoder(statusResp.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.WalletAddress == "" || summary.Network == nil {
		t.Errorf("summary = %+v", summary)
	}
}
