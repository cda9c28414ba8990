package cdp

import "vaultd/crypto"

// SetMinimumCollateralRatio updates the minimum collateral ratio. The new
// value must sit inside [101, 1000] and stay strictly above the liquidation
// ratio; the cross-field invariant is re-validated against the post-lock
// state, never a stale read.
func (e *Engine) SetMinimumCollateralRatio(caller crypto.Address, ratio uint64) error {
	return e.updateParams(caller, func(params *RiskParameters) {
		params.MinimumCollateralRatio = ratio
	})
}

// SetLiquidationRatio updates the liquidation ratio, which must stay strictly
// below the minimum collateral ratio.
func (e *Engine) SetLiquidationRatio(caller crypto.Address, ratio uint64) error {
	return e.updateParams(caller, func(params *RiskParameters) {
		params.LiquidationRatio = ratio
	})
}

// SetStabilityFee updates the declared stability fee rate. The fee is bounded
// at 100 percentage points and is not accrued by the current logic.
func (e *Engine) SetStabilityFee(caller crypto.Address, fee uint64) error {
	return e.updateParams(caller, func(params *RiskParameters) {
		params.StabilityFee = fee
	})
}

// RiskParams returns a copy of the current risk parameters.
func (e *Engine) RiskParams() (RiskParameters, error) {
	if e == nil || e.state == nil {
		return RiskParameters{}, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	params, err := e.loadParams()
	if err != nil {
		return RiskParameters{}, err
	}
	return *params, nil
}

// updateParams applies a single-field mutation under the engine lock and
// commits only if the full parameter set still validates.
func (e *Engine) updateParams(caller crypto.Address, mutate func(*RiskParameters)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !caller.Equal(e.governance) {
		return ErrUnauthorized
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	candidate := *params
	mutate(&candidate)
	if err := candidate.Validate(); err != nil {
		return err
	}
	return e.state.PutRiskParameters(&candidate)
}
