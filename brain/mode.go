package brain

import (
	"fmt"
	"slices"
	"sync/atomic"

	"cortex/common"
)

// GuestMode is the fixed persona forced on every non-admin caller.
const GuestMode = "guest"

// Mode is the process-wide current persona. Reads are lock-free snapshots;
// writes go through Set, which validates against the configured persona set.
// The orchestrator reads the mode once at the start of a turn and never
// mid-turn.
type Mode struct {
	value   atomic.Value // string
	allowed []string
}

// NewMode initializes the mode from config: the default mode, validated
// against the configured persona list.
func NewMode(config common.Config) *Mode {
	allowed := config.Modes
	if len(allowed) == 0 {
		allowed = common.DefaultConfig().Modes
	}
	initial := config.DefaultMode
	if initial == "" || !slices.Contains(allowed, initial) {
		initial = allowed[0]
	}

	m := &Mode{allowed: allowed}
	m.value.Store(initial)
	return m
}

// Get returns a snapshot of the current mode.
func (m *Mode) Get() string {
	return m.value.Load().(string)
}

// Set switches the current mode. Unknown modes are rejected.
func (m *Mode) Set(name string) error {
	if !slices.Contains(m.allowed, name) && name != GuestMode {
		return fmt.Errorf("unknown mode: %q", name)
	}
	m.value.Store(name)
	return nil
}

// Allowed returns the configured persona names.
func (m *Mode) Allowed() []string {
	return slices.Clone(m.allowed)
}
