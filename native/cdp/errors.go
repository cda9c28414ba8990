package cdp

import "errors"

var (
	errNilState = errors.New("cdp engine: state not configured")

	// ErrUnauthorized rejects callers lacking the capability an operation
	// requires (governance ownership, oracle or liquidator registration).
	ErrUnauthorized = errors.New("cdp engine: caller not authorized")
	// ErrAlreadyInitialized rejects a second Initialize call.
	ErrAlreadyInitialized = errors.New("cdp engine: already initialized")
	// ErrNotInitialized rejects operations before Initialize has run.
	ErrNotInitialized = errors.New("cdp engine: not initialized")
	// ErrInvalidParameter covers numeric bound violations and access-list
	// idempotence violations.
	ErrInvalidParameter = errors.New("cdp engine: invalid parameter")
	// ErrInvalidPrice rejects oracle submissions outside the sane range and
	// valuations attempted while no valid price is on record.
	ErrInvalidPrice = errors.New("cdp engine: invalid price")
	// ErrEmergencyShutdown blocks growth operations once the system is halted.
	ErrEmergencyShutdown = errors.New("cdp engine: emergency shutdown active")
	// ErrInsufficientCollateral rejects withdrawals exceeding the recorded
	// collateral balance.
	ErrInsufficientCollateral = errors.New("cdp engine: insufficient collateral")
	// ErrInsufficientDebt rejects repayments exceeding the recorded debt.
	ErrInsufficientDebt = errors.New("cdp engine: insufficient debt")
	// ErrBelowMinimumRatio rejects mints and withdrawals that would breach the
	// solvency invariant.
	ErrBelowMinimumRatio = errors.New("cdp engine: below minimum collateral ratio")
	// ErrAboveLiquidationThreshold rejects liquidation of a healthy vault.
	ErrAboveLiquidationThreshold = errors.New("cdp engine: vault above liquidation threshold")
	// ErrNoDebt rejects liquidation of a vault with nothing to liquidate.
	ErrNoDebt = errors.New("cdp engine: vault has no debt")
	// ErrVaultNotFound reports a lookup for an owner with no vault record.
	ErrVaultNotFound = errors.New("cdp engine: vault not found")
	// ErrTransferFailed wraps failures reported by the external custodian or
	// issuer collaborators.
	ErrTransferFailed = errors.New("cdp engine: external transfer failed")
)
