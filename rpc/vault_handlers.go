package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"vaultd/crypto"
	"vaultd/native/cdp"
)

type addressParams struct {
	Address string `json:"address"`
}

type amountParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type liquidateParams struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

type priceParams struct {
	Caller string `json:"caller"`
	Price  string `json:"price"`
}

type riskParamParams struct {
	Caller string `json:"caller"`
	Name   string `json:"name"`
	Value  uint64 `json:"value"`
}

type roleParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Address string `json:"address"`
	Action  string `json:"action"`
}

type hasRoleParams struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

type vaultResult struct {
	Owner            string `json:"owner"`
	Collateral       string `json:"collateral"`
	Debt             string `json:"debt"`
	LastFeeTimestamp uint64 `json:"lastFeeTimestamp"`
}

type ratioResult struct {
	Address string `json:"address"`
	Ratio   string `json:"ratio"`
}

type priceResult struct {
	Value string `json:"value"`
	Valid bool   `json:"valid"`
}

type riskParamsResult struct {
	MinimumCollateralRatio uint64 `json:"minimumCollateralRatio"`
	LiquidationRatio       uint64 `json:"liquidationRatio"`
	StabilityFee           uint64 `json:"stabilityFee"`
}

type liquidateResult struct {
	Owner  string `json:"owner"`
	Seized string `json:"seized"`
}

type ackResult struct {
	OK bool `json:"ok"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddressField(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s address: %w", field, err)
	}
	return addr, nil
}

func parseAmountField(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q is not a decimal integer", field, value)
	}
	return amount, nil
}

func (s *Server) handleGetVault(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	owner, err := parseAddressField("owner", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	vault, err := s.engine.Vault(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultResult{
		Owner:            vault.Owner.String(),
		Collateral:       vault.Collateral.String(),
		Debt:             vault.Debt.String(),
		LastFeeTimestamp: vault.LastFeeTimestamp,
	})
}

func (s *Server) handleGetCollateralRatio(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	owner, err := parseAddressField("owner", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ratio, err := s.engine.CollateralRatio(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ratioResult{Address: params.Address, Ratio: ratio.String()})
}

func (s *Server) handleGetPrice(w http.ResponseWriter, req *RPCRequest) {
	price, err := s.engine.Price()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, priceResult{Value: price.Value.String(), Valid: price.Valid})
}

func (s *Server) handleGetRiskParams(w http.ResponseWriter, req *RPCRequest) {
	params, err := s.engine.RiskParams()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, riskParamsResult{
		MinimumCollateralRatio: params.MinimumCollateralRatio,
		LiquidationRatio:       params.LiquidationRatio,
		StabilityFee:           params.StabilityFee,
	})
}

func (s *Server) handleHasRole(w http.ResponseWriter, req *RPCRequest) {
	var params hasRoleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	principal, err := parseAddressField("principal", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	role, err := parseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ok, err := s.engine.HasRole(role, principal)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"member": ok})
}

// handleAmountOp factors the shared caller+amount plumbing for the four
// ledger operations.
func (s *Server) handleAmountOp(w http.ResponseWriter, req *RPCRequest, method string, op func(crypto.Address, *big.Int) error) {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressField("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmountField("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	opErr := op(caller, amount)
	s.metrics.ObserveOperation(method, errResult(opErr))
	if opErr != nil {
		writeEngineError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	s.handleAmountOp(w, req, "deposit", s.engine.Deposit)
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) {
	s.handleAmountOp(w, req, "mint", s.engine.Mint)
}

func (s *Server) handleRepay(w http.ResponseWriter, req *RPCRequest) {
	s.handleAmountOp(w, req, "repay", s.engine.Repay)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	s.handleAmountOp(w, req, "withdraw", s.engine.Withdraw)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, req *RPCRequest) {
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressField("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddressField("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	seized, opErr := s.engine.Liquidate(caller, owner)
	s.metrics.ObserveOperation("liquidate", errResult(opErr))
	if opErr != nil {
		// A transfer failure after the delete is still a completed
		// liquidation with the collateral stranded in custody.
		if errors.Is(opErr, cdp.ErrTransferFailed) {
			s.metrics.ObserveLiquidation(true)
			s.logger.Error("liquidation collateral release failed",
				"owner", params.Owner, "err", opErr)
		}
		writeEngineError(w, req.ID, opErr)
		return
	}
	s.metrics.ObserveLiquidation(false)
	s.logger.Info("vault liquidated", "owner", params.Owner, "seized", seized.String())
	writeResult(w, req.ID, liquidateResult{Owner: params.Owner, Seized: seized.String()})
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, req *RPCRequest) {
	var params priceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressField("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseAmountField("price", params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	opErr := s.engine.UpdatePrice(caller, price)
	s.metrics.ObserveOperation("update_price", errResult(opErr))
	if opErr != nil {
		writeEngineError(w, req.ID, opErr)
		return
	}
	value, _ := new(big.Float).SetInt(price).Float64()
	s.metrics.SetOraclePrice(value)
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params priceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressField("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseAmountField("price", params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	opErr := s.engine.Initialize(caller, price)
	s.metrics.ObserveOperation("initialize", errResult(opErr))
	if opErr != nil {
		writeEngineError(w, req.ID, opErr)
		return
	}
	s.logger.Info("engine initialized", "price", params.Price)
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleTriggerShutdown(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressField("caller", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	opErr := s.engine.TriggerEmergencyShutdown(caller)
	s.metrics.ObserveOperation("emergency_shutdown", errResult(opErr))
	if opErr != nil {
		writeEngineError(w, req.ID, opErr)
		return
	}
	s.logger.Warn("emergency shutdown triggered", "caller", params.Address)
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleSetRiskParam(w http.ResponseWriter, req *RPCRequest) {
	var params riskParamParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressField("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	var opErr error
	switch strings.ToLower(strings.TrimSpace(params.Name)) {
	case "minimumcollateralratio":
		opErr = s.engine.SetMinimumCollateralRatio(caller, params.Value)
	case "liquidationratio":
		opErr = s.engine.SetLiquidationRatio(caller, params.Value)
	case "stabilityfee":
		opErr = s.engine.SetStabilityFee(caller, params.Value)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams,
			fmt.Sprintf("unknown risk parameter %q", params.Name), nil)
		return
	}
	s.metrics.ObserveOperation("set_risk_param", errResult(opErr))
	if opErr != nil {
		writeEngineError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, req *RPCRequest) {
	var params roleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressField("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	principal, err := parseAddressField("principal", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	role, err := parseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	var opErr error
	switch strings.ToLower(strings.TrimSpace(params.Action)) {
	case "add":
		if role == cdp.RoleLiquidator {
			opErr = s.engine.AddLiquidator(caller, principal)
		} else {
			opErr = s.engine.AddOracle(caller, principal)
		}
	case "remove":
		if role == cdp.RoleLiquidator {
			opErr = s.engine.RemoveLiquidator(caller, principal)
		} else {
			opErr = s.engine.RemoveOracle(caller, principal)
		}
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams,
			fmt.Sprintf("unknown role action %q", params.Action), nil)
		return
	}
	s.metrics.ObserveOperation("update_role", errResult(opErr))
	if opErr != nil {
		writeEngineError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, ackResult{OK: true})
}

func parseRole(raw string) (cdp.Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(cdp.RoleLiquidator):
		return cdp.RoleLiquidator, nil
	case string(cdp.RoleOracle):
		return cdp.RoleOracle, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}
