package cdp

import (
	"math/big"

	"vaultd/crypto"
)

var (
	minOraclePrice = big.NewInt(1)
	maxOraclePrice = big.NewInt(1_000_000_000)
)

func validatePrice(price *big.Int) error {
	if price == nil || price.Cmp(minOraclePrice) < 0 || price.Cmp(maxOraclePrice) > 0 {
		return ErrInvalidPrice
	}
	return nil
}

// PriceStrategy decides the committed price for an authorized oracle
// submission. The baseline register accepts every in-range write; hardened
// variants may reject or adjust submissions using the previous record.
type PriceStrategy interface {
	Commit(previous *OraclePrice, submitted *big.Int) (*big.Int, error)
}

// LastWrite is the baseline strategy: any single authorized oracle overwrites
// the price unilaterally. This trades manipulation resistance for simplicity
// and is a known weakness of the design.
type LastWrite struct{}

func (LastWrite) Commit(_ *OraclePrice, submitted *big.Int) (*big.Int, error) {
	return submitted, nil
}

// BoundedDeviation rejects submissions that move more than MaxDeviationPct
// percent away from the last valid price. The first valid write always
// commits.
type BoundedDeviation struct {
	MaxDeviationPct uint64
}

func (s BoundedDeviation) Commit(previous *OraclePrice, submitted *big.Int) (*big.Int, error) {
	if previous == nil || !previous.Valid || previous.Value == nil || previous.Value.Sign() == 0 {
		return submitted, nil
	}
	diff := new(big.Int).Sub(submitted, previous.Value)
	if diff.Sign() < 0 {
		diff.Neg(diff)
	}
	// |submitted - previous| * 100 > previous * MaxDeviationPct
	lhs := new(big.Int).Mul(diff, hundred)
	rhs := new(big.Int).Mul(previous.Value, new(big.Int).SetUint64(s.MaxDeviationPct))
	if lhs.Cmp(rhs) > 0 {
		return nil, ErrInvalidPrice
	}
	return submitted, nil
}

// UpdatePrice accepts a price submission from a registered oracle. The value
// must sit inside the sane range and pass the configured aggregation
// strategy; on success it becomes the single point of truth for every
// subsequent valuation, and the validity flag flips true.
func (e *Engine) UpdatePrice(caller crypto.Address, price *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	oracles, err := e.loadAccessList(RoleOracle)
	if err != nil {
		return err
	}
	if !oracles.Contains(caller) {
		return ErrUnauthorized
	}
	if err := validatePrice(price); err != nil {
		return err
	}

	previous, err := e.loadPrice()
	if err != nil {
		return err
	}
	committed, err := e.strategy.Commit(previous, price)
	if err != nil {
		return err
	}
	return e.state.PutOraclePrice(&OraclePrice{Value: new(big.Int).Set(committed), Valid: true})
}

// Price returns the current oracle record. The read never fails on an unset
// register: before the first write the value is zero and invalid.
func (e *Engine) Price() (*OraclePrice, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	price, err := e.loadPrice()
	if err != nil {
		return nil, err
	}
	return price.Clone(), nil
}
