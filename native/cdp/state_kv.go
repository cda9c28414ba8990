package cdp

import (
	"encoding/json"
	"fmt"
	"math/big"

	"vaultd/crypto"
	"vaultd/storage"
)

// Storage key prefixes for engine state.
var (
	keyVaultPrefix = []byte("cdp/vault/")
	keyParams      = []byte("cdp/params")
	keyPrice       = []byte("cdp/price")
	keyFlags       = []byte("cdp/flags")
	keyRolePrefix  = []byte("cdp/role/")
)

// KVState persists engine state in a key-value database. Records are encoded
// as JSON with bech32 addresses and decimal strings for big integers, keyed
// under a cdp/ prefix so the database can be shared with other modules.
type KVState struct {
	db storage.Database
}

// NewKVState wraps the supplied database as an engine persistence backend.
func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

type storedVault struct {
	Owner            string `json:"owner"`
	Collateral       string `json:"collateral"`
	Debt             string `json:"debt"`
	LastFeeTimestamp uint64 `json:"lastFeeTimestamp"`
}

type storedParams struct {
	MinimumCollateralRatio uint64 `json:"minimumCollateralRatio"`
	LiquidationRatio       uint64 `json:"liquidationRatio"`
	StabilityFee           uint64 `json:"stabilityFee"`
}

type storedPrice struct {
	Value string `json:"value"`
	Valid bool   `json:"valid"`
}

type storedFlags struct {
	Initialized       bool `json:"initialized"`
	EmergencyShutdown bool `json:"emergencyShutdown"`
}

type storedAccessList struct {
	Members []string `json:"members"`
}

func vaultKey(owner crypto.Address) []byte {
	return append(append([]byte(nil), keyVaultPrefix...), owner.Bytes()...)
}

func roleKey(role Role) []byte {
	return append(append([]byte(nil), keyRolePrefix...), []byte(role)...)
}

func (s *KVState) GetVault(owner crypto.Address) (*Vault, error) {
	raw, ok, err := s.db.Get(vaultKey(owner))
	if err != nil {
		return nil, fmt.Errorf("cdp state: load vault: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var stored storedVault
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("cdp state: decode vault: %w", err)
	}
	addr, err := crypto.DecodeAddress(stored.Owner)
	if err != nil {
		return nil, fmt.Errorf("cdp state: decode vault owner: %w", err)
	}
	collateral, err := parseAmount(stored.Collateral)
	if err != nil {
		return nil, fmt.Errorf("cdp state: decode collateral: %w", err)
	}
	debt, err := parseAmount(stored.Debt)
	if err != nil {
		return nil, fmt.Errorf("cdp state: decode debt: %w", err)
	}
	return &Vault{
		Owner:            addr,
		Collateral:       collateral,
		Debt:             debt,
		LastFeeTimestamp: stored.LastFeeTimestamp,
	}, nil
}

func (s *KVState) PutVault(vault *Vault) error {
	if vault == nil {
		return fmt.Errorf("cdp state: nil vault")
	}
	stored := storedVault{
		Owner:            vault.Owner.String(),
		Collateral:       formatAmount(vault.Collateral),
		Debt:             formatAmount(vault.Debt),
		LastFeeTimestamp: vault.LastFeeTimestamp,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("cdp state: encode vault: %w", err)
	}
	return s.db.Put(vaultKey(vault.Owner), raw)
}

func (s *KVState) DeleteVault(owner crypto.Address) error {
	return s.db.Delete(vaultKey(owner))
}

func (s *KVState) GetRiskParameters() (*RiskParameters, error) {
	raw, ok, err := s.db.Get(keyParams)
	if err != nil {
		return nil, fmt.Errorf("cdp state: load params: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var stored storedParams
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("cdp state: decode params: %w", err)
	}
	return &RiskParameters{
		MinimumCollateralRatio: stored.MinimumCollateralRatio,
		LiquidationRatio:       stored.LiquidationRatio,
		StabilityFee:           stored.StabilityFee,
	}, nil
}

func (s *KVState) PutRiskParameters(params *RiskParameters) error {
	if params == nil {
		return fmt.Errorf("cdp state: nil params")
	}
	raw, err := json.Marshal(storedParams{
		MinimumCollateralRatio: params.MinimumCollateralRatio,
		LiquidationRatio:       params.LiquidationRatio,
		StabilityFee:           params.StabilityFee,
	})
	if err != nil {
		return fmt.Errorf("cdp state: encode params: %w", err)
	}
	return s.db.Put(keyParams, raw)
}

func (s *KVState) GetOraclePrice() (*OraclePrice, error) {
	raw, ok, err := s.db.Get(keyPrice)
	if err != nil {
		return nil, fmt.Errorf("cdp state: load price: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var stored storedPrice
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("cdp state: decode price: %w", err)
	}
	value, err := parseAmount(stored.Value)
	if err != nil {
		return nil, fmt.Errorf("cdp state: decode price value: %w", err)
	}
	return &OraclePrice{Value: value, Valid: stored.Valid}, nil
}

func (s *KVState) PutOraclePrice(price *OraclePrice) error {
	if price == nil {
		return fmt.Errorf("cdp state: nil price")
	}
	raw, err := json.Marshal(storedPrice{Value: formatAmount(price.Value), Valid: price.Valid})
	if err != nil {
		return fmt.Errorf("cdp state: encode price: %w", err)
	}
	return s.db.Put(keyPrice, raw)
}

func (s *KVState) GetFlags() (*SystemFlags, error) {
	raw, ok, err := s.db.Get(keyFlags)
	if err != nil {
		return nil, fmt.Errorf("cdp state: load flags: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var stored storedFlags
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("cdp state: decode flags: %w", err)
	}
	return &SystemFlags{
		Initialized:       stored.Initialized,
		EmergencyShutdown: stored.EmergencyShutdown,
	}, nil
}

func (s *KVState) PutFlags(flags *SystemFlags) error {
	if flags == nil {
		return fmt.Errorf("cdp state: nil flags")
	}
	raw, err := json.Marshal(storedFlags{
		Initialized:       flags.Initialized,
		EmergencyShutdown: flags.EmergencyShutdown,
	})
	if err != nil {
		return fmt.Errorf("cdp state: encode flags: %w", err)
	}
	return s.db.Put(keyFlags, raw)
}

func (s *KVState) GetAccessList(role Role) (*AccessList, error) {
	raw, ok, err := s.db.Get(roleKey(role))
	if err != nil {
		return nil, fmt.Errorf("cdp state: load access list: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var stored storedAccessList
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("cdp state: decode access list: %w", err)
	}
	list := &AccessList{}
	for _, encoded := range stored.Members {
		addr, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return nil, fmt.Errorf("cdp state: decode member: %w", err)
		}
		list.Members = append(list.Members, addr)
	}
	return list, nil
}

func (s *KVState) PutAccessList(role Role, list *AccessList) error {
	if list == nil {
		return fmt.Errorf("cdp state: nil access list")
	}
	stored := storedAccessList{Members: make([]string, 0, len(list.Members))}
	for _, member := range list.Members {
		stored.Members = append(stored.Members, member.String())
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("cdp state: encode access list: %w", err)
	}
	return s.db.Put(roleKey(role), raw)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
