package cdp

import "vaultd/crypto"

// AddLiquidator registers a principal permitted to execute liquidations.
// Adding an already-present member fails ErrInvalidParameter.
func (e *Engine) AddLiquidator(caller, principal crypto.Address) error {
	return e.updateAccess(caller, RoleLiquidator, principal, true)
}

// RemoveLiquidator revokes a liquidator registration. Removing an absent
// member fails ErrInvalidParameter.
func (e *Engine) RemoveLiquidator(caller, principal crypto.Address) error {
	return e.updateAccess(caller, RoleLiquidator, principal, false)
}

// AddOracle registers a principal permitted to submit price updates.
func (e *Engine) AddOracle(caller, principal crypto.Address) error {
	return e.updateAccess(caller, RoleOracle, principal, true)
}

// RemoveOracle revokes an oracle registration.
func (e *Engine) RemoveOracle(caller, principal crypto.Address) error {
	return e.updateAccess(caller, RoleOracle, principal, false)
}

// HasRole reports whether the principal is a member of the role's access
// list.
func (e *Engine) HasRole(role Role, principal crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.loadAccessList(role)
	if err != nil {
		return false, err
	}
	return list.Contains(principal), nil
}

func (e *Engine) updateAccess(caller crypto.Address, role Role, principal crypto.Address, add bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !caller.Equal(e.governance) {
		return ErrUnauthorized
	}
	if principal.IsZero() {
		return ErrInvalidParameter
	}
	list, err := e.loadAccessList(role)
	if err != nil {
		return err
	}
	if add {
		if list.Contains(principal) {
			return ErrInvalidParameter
		}
		list.Add(principal)
	} else {
		if !list.Contains(principal) {
			return ErrInvalidParameter
		}
		list.Remove(principal)
	}
	return e.state.PutAccessList(role, list)
}
