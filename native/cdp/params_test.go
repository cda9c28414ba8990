package cdp

import (
	"errors"
	"math/big"
	"testing"
)

func TestSetMinimumCollateralRatioBounds(t *testing.T) {
	rig := newTestRig(t)

	for _, ratio := range []uint64{0, 100, 1001} {
		if err := rig.engine.SetMinimumCollateralRatio(governance, ratio); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("ratio %d: expected ErrInvalidParameter, got %v", ratio, err)
		}
	}
	if err := rig.engine.SetMinimumCollateralRatio(governance, 200); err != nil {
		t.Fatalf("valid ratio: %v", err)
	}

	params, err := rig.engine.RiskParams()
	if err != nil {
		t.Fatalf("risk params: %v", err)
	}
	if params.MinimumCollateralRatio != 200 {
		t.Fatalf("unexpected ratio: %d", params.MinimumCollateralRatio)
	}
}

func TestSetRatiosKeepsCrossFieldInvariant(t *testing.T) {
	rig := newTestRig(t)

	// MCR 150, LR 120: the liquidation ratio must stay strictly below the
	// minimum ratio in both directions of change.
	if err := rig.engine.SetLiquidationRatio(governance, 150); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("equal ratios: expected ErrInvalidParameter, got %v", err)
	}
	if err := rig.engine.SetLiquidationRatio(governance, 160); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("inverted ratios: expected ErrInvalidParameter, got %v", err)
	}
	if err := rig.engine.SetMinimumCollateralRatio(governance, 120); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("mcr dropped to lr: expected ErrInvalidParameter, got %v", err)
	}
	if err := rig.engine.SetMinimumCollateralRatio(governance, 110); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("mcr below lr: expected ErrInvalidParameter, got %v", err)
	}

	// Legal moves on both fields.
	if err := rig.engine.SetLiquidationRatio(governance, 130); err != nil {
		t.Fatalf("valid lr: %v", err)
	}
	if err := rig.engine.SetMinimumCollateralRatio(governance, 131); err != nil {
		t.Fatalf("valid mcr: %v", err)
	}
}

func TestSetStabilityFeeBounds(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.engine.SetStabilityFee(governance, 101); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if err := rig.engine.SetStabilityFee(governance, 0); err != nil {
		t.Fatalf("zero fee: %v", err)
	}
	if err := rig.engine.SetStabilityFee(governance, 100); err != nil {
		t.Fatalf("max fee: %v", err)
	}
}

func TestParamUpdatesRequireGovernance(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.engine.SetMinimumCollateralRatio(alice, 200); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("mcr: expected ErrUnauthorized, got %v", err)
	}
	if err := rig.engine.SetLiquidationRatio(alice, 110); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("lr: expected ErrUnauthorized, got %v", err)
	}
	if err := rig.engine.SetStabilityFee(alice, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("fee: expected ErrUnauthorized, got %v", err)
	}
}

func TestFailedParamUpdateLeavesStateUntouched(t *testing.T) {
	rig := newTestRig(t)

	before, err := rig.engine.RiskParams()
	if err != nil {
		t.Fatalf("risk params: %v", err)
	}
	if err := rig.engine.SetLiquidationRatio(governance, 160); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	after, err := rig.engine.RiskParams()
	if err != nil {
		t.Fatalf("risk params: %v", err)
	}
	if before != after {
		t.Fatalf("rejected update mutated parameters: %+v -> %+v", before, after)
	}
}

func TestRaisedRatioBindsNewMintsOnly(t *testing.T) {
	rig := newTestRig(t)
	rig.state.price = &OraclePrice{Value: big.NewInt(50), Valid: true}

	if err := rig.engine.Deposit(alice, big.NewInt(3)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := rig.engine.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Tightening the ratio does not touch existing vaults, only future
	// solvency checks.
	if err := rig.engine.SetMinimumCollateralRatio(governance, 300); err != nil {
		t.Fatalf("raise mcr: %v", err)
	}
	vault, err := rig.engine.Vault(alice)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Debt.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("existing debt changed: %s", vault.Debt)
	}
	if err := rig.engine.Mint(alice, big.NewInt(1)); !errors.Is(err, ErrBelowMinimumRatio) {
		t.Fatalf("expected ErrBelowMinimumRatio under raised ratio, got %v", err)
	}
}

func TestRiskParametersValidate(t *testing.T) {
	cases := []struct {
		name   string
		params RiskParameters
		ok     bool
	}{
		{"defaults", RiskParameters{MinimumCollateralRatio: 150, LiquidationRatio: 120, StabilityFee: 2}, true},
		{"tightest legal", RiskParameters{MinimumCollateralRatio: 102, LiquidationRatio: 101, StabilityFee: 0}, true},
		{"widest legal", RiskParameters{MinimumCollateralRatio: 1000, LiquidationRatio: 999, StabilityFee: 100}, true},
		{"mcr too low", RiskParameters{MinimumCollateralRatio: 100, LiquidationRatio: 101, StabilityFee: 0}, false},
		{"lr too high", RiskParameters{MinimumCollateralRatio: 1000, LiquidationRatio: 1001, StabilityFee: 0}, false},
		{"lr equals mcr", RiskParameters{MinimumCollateralRatio: 150, LiquidationRatio: 150, StabilityFee: 0}, false},
		{"fee too high", RiskParameters{MinimumCollateralRatio: 150, LiquidationRatio: 120, StabilityFee: 101}, false},
	}
	for _, tc := range cases {
		err := tc.params.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("%s: expected ErrInvalidParameter, got %v", tc.name, err)
		}
	}
}
