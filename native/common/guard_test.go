package common

import (
	"errors"
	"testing"
)

type stubHaltView struct {
	blocked map[string]bool
}

func (s stubHaltView) Halted(op string) bool {
	return s.blocked[op]
}

func TestGuardNilViewAllows(t *testing.T) {
	if err := Guard(nil, "mint"); err != nil {
		t.Fatalf("nil view should allow, got %v", err)
	}
}

func TestGuardEmptyOpAllows(t *testing.T) {
	view := stubHaltView{blocked: map[string]bool{"": true}}
	if err := Guard(view, ""); err != nil {
		t.Fatalf("empty op should allow, got %v", err)
	}
}

func TestGuardBlocksHaltedOp(t *testing.T) {
	view := stubHaltView{blocked: map[string]bool{"mint": true}}
	if err := Guard(view, "mint"); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if err := Guard(view, "repay"); err != nil {
		t.Fatalf("repay should pass, got %v", err)
	}
}
