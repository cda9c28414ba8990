package cdp

import (
	"math/big"

	"vaultd/crypto"
)

// Vault is the per-owner collateral and debt record. Amounts are unsigned
// quantities held as big integers so valuation products never overflow.
type Vault struct {
	// Owner is the principal the vault belongs to.
	Owner crypto.Address
	// Collateral is the amount of collateral token held in custody for this
	// vault.
	Collateral *big.Int
	// Debt is the outstanding amount of stable token minted against the
	// collateral.
	Debt *big.Int
	// LastFeeTimestamp records when the vault was created. The stability fee
	// is declared but not accrued in this version, so the stamp is never
	// advanced afterwards.
	LastFeeTimestamp uint64
}

// Clone returns a deep copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := &Vault{Owner: v.Owner, LastFeeTimestamp: v.LastFeeTimestamp}
	if v.Collateral != nil {
		clone.Collateral = new(big.Int).Set(v.Collateral)
	}
	if v.Debt != nil {
		clone.Debt = new(big.Int).Set(v.Debt)
	}
	return clone
}

// RiskParameters groups the governance controlled safety limits, all expressed
// in percentage points.
type RiskParameters struct {
	// MinimumCollateralRatio is the ratio required to mint or withdraw.
	MinimumCollateralRatio uint64
	// LiquidationRatio is the ratio below which a vault becomes liquidatable.
	// Must stay strictly below MinimumCollateralRatio.
	LiquidationRatio uint64
	// StabilityFee is the declared annual fee rate. It is validated and
	// stored but never deducted by the current logic.
	StabilityFee uint64
}

const (
	minRatioPercent = 101
	maxRatioPercent = 1000
	maxFeePercent   = 100
)

// Validate checks the individual bounds and the cross-field ordering
// invariant.
func (p RiskParameters) Validate() error {
	if p.MinimumCollateralRatio < minRatioPercent || p.MinimumCollateralRatio > maxRatioPercent {
		return ErrInvalidParameter
	}
	if p.LiquidationRatio < minRatioPercent || p.LiquidationRatio > maxRatioPercent {
		return ErrInvalidParameter
	}
	if p.StabilityFee > maxFeePercent {
		return ErrInvalidParameter
	}
	if p.LiquidationRatio >= p.MinimumCollateralRatio {
		return ErrInvalidParameter
	}
	return nil
}

// OraclePrice is the single last-write price register consulted by every
// collateral valuation.
type OraclePrice struct {
	Value *big.Int
	Valid bool
}

// Clone returns a deep copy of the price record.
func (p *OraclePrice) Clone() *OraclePrice {
	if p == nil {
		return nil
	}
	clone := &OraclePrice{Valid: p.Valid}
	if p.Value != nil {
		clone.Value = new(big.Int).Set(p.Value)
	}
	return clone
}

// SystemFlags carries the one-way lifecycle switches. Initialized flips true
// exactly once; EmergencyShutdown only ever flips true and never resets.
type SystemFlags struct {
	Initialized       bool
	EmergencyShutdown bool
}

// Halted implements the common.HaltView interface: under emergency shutdown
// the growth operations block while repay and liquidate stay open.
func (f SystemFlags) Halted(op string) bool {
	if !f.EmergencyShutdown {
		return false
	}
	switch op {
	case opDeposit, opMint, opWithdraw:
		return true
	}
	return false
}

const (
	opDeposit  = "deposit"
	opMint     = "mint"
	opRepay    = "repay"
	opWithdraw = "withdraw"
)

// Role names an authorization set in the access registry.
type Role string

const (
	// RoleLiquidator marks principals permitted to execute liquidations.
	RoleLiquidator Role = "liquidator"
	// RoleOracle marks principals permitted to submit price updates.
	RoleOracle Role = "oracle"
)

// AccessList is the membership set for a single role.
type AccessList struct {
	Members []crypto.Address
}

// Contains reports membership by address bytes.
func (l *AccessList) Contains(addr crypto.Address) bool {
	if l == nil {
		return false
	}
	for _, member := range l.Members {
		if member.Equal(addr) {
			return true
		}
	}
	return false
}

// Add appends a new member. The caller is responsible for the idempotence
// check.
func (l *AccessList) Add(addr crypto.Address) {
	l.Members = append(l.Members, addr)
}

// Remove deletes the member with matching address bytes.
func (l *AccessList) Remove(addr crypto.Address) {
	filtered := l.Members[:0]
	for _, member := range l.Members {
		if !member.Equal(addr) {
			filtered = append(filtered, member)
		}
	}
	l.Members = filtered
}
