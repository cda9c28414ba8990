package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"vaultd/crypto"
	"vaultd/native/bank"
	"vaultd/native/cdp"
	"vaultd/storage"
)

const testToken = "test-token"

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.NewAddress(crypto.VaultPrefix, raw)
}

var (
	governance = makeAddress(0x01)
	custody    = makeAddress(0x02)
	alice      = makeAddress(0x10)
	feeder     = makeAddress(0x21)
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db := storage.NewMemDB()
	book := bank.NewBook(db)
	if err := book.Credit(alice, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	engine := cdp.NewEngine(governance, custody, cdp.RiskParameters{
		MinimumCollateralRatio: 150,
		LiquidationRatio:       120,
		StabilityFee:           2,
	})
	engine.SetState(cdp.NewKVState(db))
	engine.SetCustodian(book)
	engine.SetIssuer(book)
	if err := engine.Initialize(governance, big.NewInt(50_000_000)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.AddOracle(governance, feeder); err != nil {
		t.Fatalf("add oracle: %v", err)
	}

	srv := NewServer(engine, testToken, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func call(t *testing.T, ts *httptest.Server, token, method string, params interface{}) *RPCResponse {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func TestWriteMethodsRequireBearerToken(t *testing.T) {
	_, ts := newTestServer(t)

	params := map[string]string{"caller": alice.String(), "amount": "100"}
	resp := call(t, ts, "", "vault_deposit", params)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}

	resp = call(t, ts, "wrong-token", "vault_deposit", params)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}

	resp = call(t, ts, testToken, "vault_deposit", params)
	if resp.Error != nil {
		t.Fatalf("authorized deposit failed: %+v", resp.Error)
	}
}

func TestReadMethodsAreOpen(t *testing.T) {
	_, ts := newTestServer(t)

	resp := call(t, ts, "", "vault_getPrice", nil)
	if resp.Error != nil {
		t.Fatalf("open read failed: %+v", resp.Error)
	}
	var price priceResult
	raw, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, &price); err != nil {
		t.Fatalf("decode price result: %v", err)
	}
	if price.Value != "50000000" || !price.Valid {
		t.Fatalf("unexpected price result: %+v", price)
	}
}

func TestDepositMintQueryFlow(t *testing.T) {
	_, ts := newTestServer(t)

	resp := call(t, ts, testToken, "vault_deposit", map[string]string{
		"caller": alice.String(), "amount": "1000000",
	})
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}
	resp = call(t, ts, testToken, "vault_mint", map[string]string{
		"caller": alice.String(), "amount": "500",
	})
	if resp.Error != nil {
		t.Fatalf("mint: %+v", resp.Error)
	}

	resp = call(t, ts, "", "vault_getVault", map[string]string{"address": alice.String()})
	if resp.Error != nil {
		t.Fatalf("get vault: %+v", resp.Error)
	}
	var vault vaultResult
	raw, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, &vault); err != nil {
		t.Fatalf("decode vault result: %v", err)
	}
	if vault.Collateral != "1000000" || vault.Debt != "500" {
		t.Fatalf("unexpected vault: %+v", vault)
	}
}

func TestEngineErrorsMapToStableCodes(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []struct {
		name   string
		method string
		params interface{}
		code   int
	}{
		{
			name:   "vault not found",
			method: "vault_getVault",
			params: map[string]string{"address": makeAddress(0x77).String()},
			code:   codeVaultNotFound,
		},
		{
			name:   "unauthorized oracle",
			method: "vault_updatePrice",
			params: map[string]string{"caller": alice.String(), "price": "100"},
			code:   codeUnauthorized,
		},
		{
			name:   "excessive mint",
			method: "vault_mint",
			params: map[string]string{"caller": alice.String(), "amount": "100000000000000000"},
			code:   codeBelowMinimumRatio,
		},
		{
			name:   "double initialize",
			method: "vault_initialize",
			params: map[string]string{"caller": governance.String(), "price": "50000000"},
			code:   codeAlreadyInitialized,
		},
	}
	for _, tc := range cases {
		resp := call(t, ts, testToken, tc.method, tc.params)
		if resp.Error == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if resp.Error.Code != tc.code {
			t.Fatalf("%s: expected code %d, got %d (%s)", tc.name, tc.code, resp.Error.Code, resp.Error.Message)
		}
	}
}

func TestInvalidParamsRejected(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []struct {
		name   string
		method string
		params interface{}
	}{
		{"bad address", "vault_getVault", map[string]string{"address": "garbage"}},
		{"bad amount", "vault_deposit", map[string]string{"caller": alice.String(), "amount": "1.5"}},
		{"missing params", "vault_deposit", nil},
		{"unknown role", "vault_hasRole", map[string]string{"role": "janitor", "address": alice.String()}},
		{"unknown risk param", "vault_setRiskParam", map[string]interface{}{
			"caller": governance.String(), "name": "velocity", "value": 9,
		}},
	}
	for _, tc := range cases {
		resp := call(t, ts, testToken, tc.method, tc.params)
		if resp.Error == nil || resp.Error.Code != codeInvalidParams {
			t.Fatalf("%s: expected invalid params error, got %+v", tc.name, resp.Error)
		}
	}
}

func TestMethodNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	resp := call(t, ts, "", "vault_doesNotExist", nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestGovernanceFlowOverRPC(t *testing.T) {
	_, ts := newTestServer(t)
	keeper := makeAddress(0x55)

	resp := call(t, ts, testToken, "vault_updateRole", map[string]string{
		"caller": governance.String(), "role": "liquidator", "address": keeper.String(), "action": "add",
	})
	if resp.Error != nil {
		t.Fatalf("add role: %+v", resp.Error)
	}

	resp = call(t, ts, "", "vault_hasRole", map[string]string{
		"role": "liquidator", "address": keeper.String(),
	})
	if resp.Error != nil {
		t.Fatalf("has role: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var membership map[string]bool
	if err := json.Unmarshal(raw, &membership); err != nil {
		t.Fatalf("decode membership: %v", err)
	}
	if !membership["member"] {
		t.Fatal("expected keeper to be registered")
	}

	resp = call(t, ts, testToken, "vault_setRiskParam", map[string]interface{}{
		"caller": governance.String(), "name": "stabilityfee", "value": 7,
	})
	if resp.Error != nil {
		t.Fatalf("set risk param: %+v", resp.Error)
	}
	resp = call(t, ts, "", "vault_getRiskParams", nil)
	if resp.Error != nil {
		t.Fatalf("get risk params: %+v", resp.Error)
	}
	raw, _ = json.Marshal(resp.Result)
	var rp riskParamsResult
	if err := json.Unmarshal(raw, &rp); err != nil {
		t.Fatalf("decode risk params: %v", err)
	}
	if rp.StabilityFee != 7 {
		t.Fatalf("unexpected stability fee: %d", rp.StabilityFee)
	}
}

func TestShutdownAsymmetryOverRPC(t *testing.T) {
	_, ts := newTestServer(t)

	for _, step := range []struct {
		method string
		params map[string]string
	}{
		{"vault_deposit", map[string]string{"caller": alice.String(), "amount": "1000000"}},
		{"vault_mint", map[string]string{"caller": alice.String(), "amount": "500"}},
		{"vault_triggerEmergencyShutdown", map[string]string{"address": governance.String()}},
	} {
		resp := call(t, ts, testToken, step.method, step.params)
		if resp.Error != nil {
			t.Fatalf("%s: %+v", step.method, resp.Error)
		}
	}

	resp := call(t, ts, testToken, "vault_mint", map[string]string{
		"caller": alice.String(), "amount": "1",
	})
	if resp.Error == nil || resp.Error.Code != codeEmergencyShutdown {
		t.Fatalf("expected shutdown error, got %+v", resp.Error)
	}
	resp = call(t, ts, testToken, "vault_repay", map[string]string{
		"caller": alice.String(), "amount": "500",
	})
	if resp.Error != nil {
		t.Fatalf("repay under shutdown: %+v", resp.Error)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	_, ts := newTestServer(t)

	oversized := bytes.Repeat([]byte("a"), maxRequestBytes+1)
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(oversized))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestUnsupportedJSONRPCVersion(t *testing.T) {
	_, ts := newTestServer(t)

	payload := []byte(`{"jsonrpc":"1.0","id":1,"method":"vault_getPrice"}`)
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", decoded.Error)
	}
}
