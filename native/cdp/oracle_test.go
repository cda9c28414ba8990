package cdp

import (
	"errors"
	"math/big"
	"testing"
)

func TestUpdatePriceRequiresRegisteredOracle(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.engine.UpdatePrice(bob, big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpdatePriceBounds(t *testing.T) {
	rig := newTestRig(t)

	cases := []struct {
		name  string
		price *big.Int
		want  error
	}{
		{"nil", nil, ErrInvalidPrice},
		{"zero", big.NewInt(0), ErrInvalidPrice},
		{"negative", big.NewInt(-5), ErrInvalidPrice},
		{"above max", big.NewInt(1_000_000_001), ErrInvalidPrice},
		{"min", big.NewInt(1), nil},
		{"max", big.NewInt(1_000_000_000), nil},
	}
	for _, tc := range cases {
		err := rig.engine.UpdatePrice(feeder, tc.price)
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestUpdatePriceLastWriteWins(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.engine.UpdatePrice(feeder, big.NewInt(42)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := rig.engine.UpdatePrice(feeder, big.NewInt(999_999)); err != nil {
		t.Fatalf("update: %v", err)
	}

	price, err := rig.engine.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Valid {
		t.Fatal("expected valid price")
	}
	if price.Value.Cmp(big.NewInt(999_999)) != 0 {
		t.Fatalf("expected last write to win, got %s", price.Value)
	}
}

func TestBoundedDeviationStrategy(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.SetPriceStrategy(BoundedDeviation{MaxDeviationPct: 10})
	rig.state.price = &OraclePrice{Value: big.NewInt(0), Valid: false}

	if err := rig.engine.UpdatePrice(feeder, big.NewInt(1_000)); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	// 10% up is the inclusive limit.
	if err := rig.engine.UpdatePrice(feeder, big.NewInt(1_100)); err != nil {
		t.Fatalf("write at deviation limit: %v", err)
	}
	// More than 10% away from the last commit is rejected.
	if err := rig.engine.UpdatePrice(feeder, big.NewInt(1_300)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	// The rejected write left the register untouched.
	price, err := rig.engine.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Value.Cmp(big.NewInt(1_100)) != 0 {
		t.Fatalf("rejected write mutated the register: %s", price.Value)
	}
	// Downward moves are bounded symmetrically.
	if err := rig.engine.UpdatePrice(feeder, big.NewInt(900)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice on downward jump, got %v", err)
	}
}

func TestBoundedDeviationFirstWriteAlwaysCommits(t *testing.T) {
	engine := NewEngine(governance, custody, testRiskParams())
	state := newMockEngineState()
	engine.SetState(state)
	engine.SetPriceStrategy(BoundedDeviation{MaxDeviationPct: 1})
	if err := engine.AddOracle(governance, feeder); err != nil {
		t.Fatalf("add oracle: %v", err)
	}

	if err := engine.UpdatePrice(feeder, big.NewInt(777)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if state.price.Value.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("unexpected committed price: %s", state.price.Value)
	}
}

func TestPriceUnsetRegister(t *testing.T) {
	engine := NewEngine(governance, custody, testRiskParams())
	engine.SetState(newMockEngineState())

	price, err := engine.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Valid {
		t.Fatal("expected invalid price before first write")
	}
	if price.Value.Sign() != 0 {
		t.Fatalf("expected zero value, got %s", price.Value)
	}
}

func TestUpdatePriceAffectsSolvencyChecks(t *testing.T) {
	rig := newTestRig(t)
	rig.state.price = &OraclePrice{Value: big.NewInt(50), Valid: true}

	if err := rig.engine.Deposit(alice, big.NewInt(3)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := rig.engine.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint at price 50: %v", err)
	}
	// A lower committed price immediately tightens the mint check.
	if err := rig.engine.UpdatePrice(feeder, big.NewInt(25)); err != nil {
		t.Fatalf("price update: %v", err)
	}
	if err := rig.engine.Mint(alice, big.NewInt(1)); !errors.Is(err, ErrBelowMinimumRatio) {
		t.Fatalf("expected ErrBelowMinimumRatio after price drop, got %v", err)
	}
}
