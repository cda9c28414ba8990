package cdp

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"vaultd/crypto"
	nativecommon "vaultd/native/common"
)

// engineState is the persistence seam for the engine. Implementations must be
// linearizable per key; the engine's own mutex provides cross-key atomicity
// within a single operation.
type engineState interface {
	GetVault(owner crypto.Address) (*Vault, error)
	PutVault(vault *Vault) error
	DeleteVault(owner crypto.Address) error
	GetRiskParameters() (*RiskParameters, error)
	PutRiskParameters(params *RiskParameters) error
	GetOraclePrice() (*OraclePrice, error)
	PutOraclePrice(price *OraclePrice) error
	GetFlags() (*SystemFlags, error)
	PutFlags(flags *SystemFlags) error
	GetAccessList(role Role) (*AccessList, error)
	PutAccessList(role Role, list *AccessList) error
}

// Custodian moves collateral tokens between principals. Transfers must be
// atomic: a failed call moves nothing.
type Custodian interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
}

// Issuer mints and retires the stable token tracked as vault debt.
type Issuer interface {
	Issue(to crypto.Address, amount *big.Int) error
	Retire(from crypto.Address, amount *big.Int) error
}

// Engine orchestrates the state transitions for the vault ledger: deposits,
// mints, repayments, withdrawals, liquidation, oracle updates, and governance
// parameter changes. Every public operation takes the caller address
// explicitly; the engine never consults ambient identity.
type Engine struct {
	mu sync.Mutex

	state          engineState
	governance     crypto.Address
	custodyAddress crypto.Address
	genesisParams  RiskParameters
	custodian      Custodian
	issuer         Issuer
	strategy       PriceStrategy
	now            func() uint64
}

// NewEngine constructs an engine owned by the governance principal, holding
// collateral in the custody account and seeding the supplied risk parameters
// at initialization.
func NewEngine(governance, custody crypto.Address, params RiskParameters) *Engine {
	return &Engine{
		governance:     governance,
		custodyAddress: custody,
		genesisParams:  params,
		strategy:       LastWrite{},
		now:            func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustodian wires the external asset transfer collaborator.
func (e *Engine) SetCustodian(c Custodian) {
	if e == nil {
		return
	}
	e.custodian = c
}

// SetIssuer wires the external stable token issuance collaborator.
func (e *Engine) SetIssuer(i Issuer) {
	if e == nil {
		return
	}
	e.issuer = i
}

// SetPriceStrategy replaces the price aggregation strategy. A nil strategy
// restores the last-write baseline.
func (e *Engine) SetPriceStrategy(s PriceStrategy) {
	if e == nil {
		return
	}
	if s == nil {
		s = LastWrite{}
	}
	e.strategy = s
}

// SetClock overrides the timestamp source used when stamping new vaults.
func (e *Engine) SetClock(now func() uint64) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// Initialize performs the one-way transition from uninitialized to running.
// It validates and persists the genesis risk parameters, seeds the oracle
// with the supplied price, and flips the initialized flag. Only the
// governance owner may call it, and only once.
func (e *Engine) Initialize(caller crypto.Address, price *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !caller.Equal(e.governance) {
		return ErrUnauthorized
	}
	flags, err := e.loadFlags()
	if err != nil {
		return err
	}
	if flags.Initialized {
		return ErrAlreadyInitialized
	}
	if err := validatePrice(price); err != nil {
		return err
	}
	if err := e.genesisParams.Validate(); err != nil {
		return err
	}

	params := e.genesisParams
	if err := e.state.PutRiskParameters(&params); err != nil {
		return err
	}
	if err := e.state.PutOraclePrice(&OraclePrice{Value: new(big.Int).Set(price), Valid: true}); err != nil {
		return err
	}
	flags.Initialized = true
	return e.state.PutFlags(flags)
}

// TriggerEmergencyShutdown flips the monotonic shutdown flag. Deposits, mints
// and withdrawals block afterwards; repayments and liquidations keep running
// so positions can only shrink. The flag never resets.
func (e *Engine) TriggerEmergencyShutdown(caller crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !caller.Equal(e.governance) {
		return ErrUnauthorized
	}
	flags, err := e.loadFlags()
	if err != nil {
		return err
	}
	if !flags.Initialized {
		return ErrNotInitialized
	}
	flags.EmergencyShutdown = true
	return e.state.PutFlags(flags)
}

// Deposit moves amount from the owner into custody and credits the owner's
// vault, creating it with zero debt if absent. The custody transfer runs
// first so a failed transfer leaves the ledger untouched.
func (e *Engine) Deposit(owner crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidParameter
	}
	if _, err := e.requireRunning(opDeposit); err != nil {
		return err
	}

	vault, err := e.ensureVault(owner)
	if err != nil {
		return err
	}

	if err := e.transfer(owner, e.custodyAddress, amount); err != nil {
		return err
	}

	vault.Collateral = new(big.Int).Add(vault.Collateral, amount)
	return e.state.PutVault(vault)
}

// Mint issues amount of the stable token against the caller's collateral. The
// solvency check uses the projected debt; issuance runs only after the check
// passes and the debt commits only after issuance succeeds.
func (e *Engine) Mint(owner crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidParameter
	}
	if _, err := e.requireRunning(opMint); err != nil {
		return err
	}
	price, err := e.requireValidPrice()
	if err != nil {
		return err
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	vault, err := e.ensureVault(owner)
	if err != nil {
		return err
	}

	newDebt := new(big.Int).Add(vault.Debt, amount)
	if !meetsRatio(vault.Collateral, price.Value, newDebt, params.MinimumCollateralRatio) {
		return ErrBelowMinimumRatio
	}

	if e.issuer != nil {
		if err := e.issuer.Issue(owner, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	vault.Debt = newDebt
	return e.state.PutVault(vault)
}

// Repay retires amount of the stable token and reduces the vault's debt.
// Repayment only improves health, so no ratio check applies and the operation
// stays available under emergency shutdown.
func (e *Engine) Repay(owner crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidParameter
	}
	if _, err := e.requireRunning(opRepay); err != nil {
		return err
	}
	vault, err := e.ensureVault(owner)
	if err != nil {
		return err
	}
	if amount.Cmp(vault.Debt) > 0 {
		return ErrInsufficientDebt
	}

	if e.issuer != nil {
		if err := e.issuer.Retire(owner, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	vault.Debt = new(big.Int).Sub(vault.Debt, amount)
	return e.state.PutVault(vault)
}

// Withdraw releases amount of collateral back to the owner after re-checking
// the solvency invariant against the reduced collateral. The custody release
// runs before the ledger commit so a failed transfer leaves the vault
// untouched.
func (e *Engine) Withdraw(owner crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidParameter
	}
	if _, err := e.requireRunning(opWithdraw); err != nil {
		return err
	}
	price, err := e.requireValidPrice()
	if err != nil {
		return err
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	vault, err := e.ensureVault(owner)
	if err != nil {
		return err
	}
	if amount.Cmp(vault.Collateral) > 0 {
		return ErrInsufficientCollateral
	}

	newCollateral := new(big.Int).Sub(vault.Collateral, amount)
	if vault.Debt.Sign() > 0 {
		if !meetsRatio(newCollateral, price.Value, vault.Debt, params.MinimumCollateralRatio) {
			return ErrBelowMinimumRatio
		}
	}

	if err := e.transfer(e.custodyAddress, owner, amount); err != nil {
		return err
	}

	vault.Collateral = newCollateral
	return e.state.PutVault(vault)
}

// Vault returns a copy of the owner's vault record.
func (e *Engine) Vault(owner crypto.Address) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	vault, err := e.state.GetVault(owner)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, ErrVaultNotFound
	}
	return vault.Clone(), nil
}

// CollateralRatio reports collateral*price/debt in percentage points using
// integer division, or zero when the vault carries no debt (the convention
// for an infinite ratio). Fractional percentage points truncate.
func (e *Engine) CollateralRatio(owner crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	vault, err := e.state.GetVault(owner)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, ErrVaultNotFound
	}
	price, err := e.loadPrice()
	if err != nil {
		return nil, err
	}
	return collateralRatio(vault.Collateral, price.Value, vault.Debt), nil
}

// --- internal helpers ---

// requireRunning loads the flags, enforces initialization, and applies the
// emergency shutdown guard for the named operation.
func (e *Engine) requireRunning(op string) (*SystemFlags, error) {
	flags, err := e.loadFlags()
	if err != nil {
		return nil, err
	}
	if !flags.Initialized {
		return nil, ErrNotInitialized
	}
	if err := nativecommon.Guard(*flags, op); err != nil {
		return nil, ErrEmergencyShutdown
	}
	return flags, nil
}

func (e *Engine) requireValidPrice() (*OraclePrice, error) {
	price, err := e.loadPrice()
	if err != nil {
		return nil, err
	}
	if !price.Valid || price.Value == nil {
		return nil, ErrInvalidPrice
	}
	return price, nil
}

// ensureVault loads the owner's vault or builds a fresh zero record stamped
// with the current timestamp. The fresh record is only persisted by
// operations that succeed, so failed calls never materialize empty vaults.
func (e *Engine) ensureVault(owner crypto.Address) (*Vault, error) {
	vault, err := e.state.GetVault(owner)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		vault = &Vault{Owner: owner, LastFeeTimestamp: e.now()}
	}
	if vault.Collateral == nil {
		vault.Collateral = big.NewInt(0)
	}
	if vault.Debt == nil {
		vault.Debt = big.NewInt(0)
	}
	return vault, nil
}

func (e *Engine) loadFlags() (*SystemFlags, error) {
	flags, err := e.state.GetFlags()
	if err != nil {
		return nil, err
	}
	if flags == nil {
		flags = &SystemFlags{}
	}
	return flags, nil
}

func (e *Engine) loadParams() (*RiskParameters, error) {
	params, err := e.state.GetRiskParameters()
	if err != nil {
		return nil, err
	}
	if params == nil {
		genesis := e.genesisParams
		params = &genesis
	}
	return params, nil
}

func (e *Engine) loadPrice() (*OraclePrice, error) {
	price, err := e.state.GetOraclePrice()
	if err != nil {
		return nil, err
	}
	if price == nil {
		price = &OraclePrice{Value: big.NewInt(0)}
	}
	if price.Value == nil {
		price.Value = big.NewInt(0)
	}
	return price, nil
}

func (e *Engine) loadAccessList(role Role) (*AccessList, error) {
	list, err := e.state.GetAccessList(role)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = &AccessList{}
	}
	return list, nil
}

func (e *Engine) transfer(from, to crypto.Address, amount *big.Int) error {
	if e.custodian == nil {
		return fmt.Errorf("%w: custodian not configured", ErrTransferFailed)
	}
	if err := e.custodian.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}
