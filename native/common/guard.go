package common

import "errors"

// ErrHalted signals that a system-wide halt blocks the requested operation.
var ErrHalted = errors.New("operation halted")

// HaltView reports whether a named operation is currently blocked. The vault
// engine's system flags implement this so shutdown gating stays asymmetric:
// growth operations halt while debt-reducing ones keep running.
type HaltView interface {
	Halted(op string) bool
}

func Guard(h HaltView, op string) error {
	if h == nil || op == "" {
		return nil
	}
	if h.Halted(op) {
		return ErrHalted
	}
	return nil
}
