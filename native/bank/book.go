// Package bank tracks collateral-token and stable-token balances per
// principal in a key-value database. The vault engine consumes it through
// its Custodian and Issuer interfaces; a deployment bridging to a real asset
// ledger swaps this implementation out at that seam.
package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"vaultd/crypto"
	"vaultd/storage"
)

var (
	// ErrInsufficientFunds rejects transfers and retirements exceeding the
	// sender's recorded balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrInvalidAmount rejects nil or non-positive amounts.
	ErrInvalidAmount = errors.New("bank: amount must be positive")
)

var (
	keyCollateralPrefix = []byte("bank/col/")
	keyStablePrefix     = []byte("bank/stb/")
)

// Book is a mutex-guarded double-entry balance store. Collateral moves
// atomically: the debit and credit of one transfer commit together or not at
// all.
type Book struct {
	mu sync.Mutex
	db storage.Database
}

func NewBook(db storage.Database) *Book {
	return &Book{db: db}
}

// Balance returns the collateral-token balance for the principal.
func (b *Book) Balance(addr crypto.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(keyCollateralPrefix, addr)
}

// StableBalance returns the stable-token balance for the principal.
func (b *Book) StableBalance(addr crypto.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(keyStablePrefix, addr)
}

// Credit adds collateral tokens to the principal's balance. Used to fund
// accounts at genesis and in tests.
func (b *Book) Credit(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	balance, err := b.load(keyCollateralPrefix, addr)
	if err != nil {
		return err
	}
	return b.store(keyCollateralPrefix, addr, new(big.Int).Add(balance, amount))
}

// Transfer moves collateral tokens between principals. A failed transfer
// moves nothing.
func (b *Book) Transfer(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBalance, err := b.load(keyCollateralPrefix, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBalance, err := b.load(keyCollateralPrefix, to)
	if err != nil {
		return err
	}
	if err := b.store(keyCollateralPrefix, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return b.store(keyCollateralPrefix, to, new(big.Int).Add(toBalance, amount))
}

// Issue mints stable tokens to the principal.
func (b *Book) Issue(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	balance, err := b.load(keyStablePrefix, to)
	if err != nil {
		return err
	}
	return b.store(keyStablePrefix, to, new(big.Int).Add(balance, amount))
}

// Retire burns stable tokens from the principal's balance.
func (b *Book) Retire(from crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	balance, err := b.load(keyStablePrefix, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	return b.store(keyStablePrefix, from, new(big.Int).Sub(balance, amount))
}

func balanceKey(prefix []byte, addr crypto.Address) []byte {
	return append(append([]byte(nil), prefix...), addr.Bytes()...)
}

func (b *Book) load(prefix []byte, addr crypto.Address) (*big.Int, error) {
	raw, ok, err := b.db.Get(balanceKey(prefix, addr))
	if err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("bank: corrupt balance record %q", raw)
	}
	return balance, nil
}

func (b *Book) store(prefix []byte, addr crypto.Address, balance *big.Int) error {
	return b.db.Put(balanceKey(prefix, addr), []byte(balance.String()))
}
