package cdp

import (
	"fmt"
	"math/big"

	"vaultd/crypto"
)

// Liquidate clears an under-collateralized vault and releases its full
// recorded collateral to the calling liquidator. Eligibility requires the
// strict inequality collateral*price*100 < debt*liquidation_ratio; a vault
// exactly at the threshold is not liquidatable.
//
// The vault record is deleted before the collateral release is requested, so
// a re-entrant liquidation attempt on the same owner observes
// ErrVaultNotFound. If the release fails after the delete, the debt is
// written off with no compensating re-credit; the error still reports the
// transfer failure so the caller knows no collateral moved.
func (e *Engine) Liquidate(caller, owner crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	flags, err := e.loadFlags()
	if err != nil {
		return nil, err
	}
	if !flags.Initialized {
		return nil, ErrNotInitialized
	}
	price, err := e.requireValidPrice()
	if err != nil {
		return nil, err
	}
	liquidators, err := e.loadAccessList(RoleLiquidator)
	if err != nil {
		return nil, err
	}
	if !liquidators.Contains(caller) {
		return nil, ErrUnauthorized
	}

	vault, err := e.state.GetVault(owner)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, ErrVaultNotFound
	}
	if vault.Debt == nil || vault.Debt.Sign() == 0 {
		return nil, ErrNoDebt
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if !belowRatio(vault.Collateral, price.Value, vault.Debt, params.LiquidationRatio) {
		return nil, ErrAboveLiquidationThreshold
	}

	seized := new(big.Int).Set(vault.Collateral)

	// Authoritative state mutates before any external effect that could
	// re-enter.
	if err := e.state.DeleteVault(owner); err != nil {
		return nil, err
	}

	if e.custodian == nil {
		return nil, fmt.Errorf("%w: custodian not configured", ErrTransferFailed)
	}
	if err := e.custodian.Transfer(e.custodyAddress, caller, seized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return seized, nil
}
