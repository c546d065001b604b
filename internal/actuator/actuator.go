// Package actuator defines the engine's discrete outputs and the banks that drive them.
package actuator

import (
	"fmt"
	"strings"
	"sync"
)

// Name identifies one binary output.
type Name int

const (
	Fuel Name = iota
	GlowPlugs
	Starter
	CoolantPump
	AltLoad
	Alarm

	numActuators
)

// String returns a human-readable actuator name.
func (n Name) String() string {
	switch n {
	case Fuel:
		return "fuel"
	case GlowPlugs:
		return "glow_plugs"
	case Starter:
		return "starter"
	case CoolantPump:
		return "coolant_pump"
	case AltLoad:
		return "alt_load"
	case Alarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// ParseName converts a name as returned by String back into a Name.
func ParseName(s string) (Name, error) {
	for _, n := range All() {
		if n.String() == strings.ToLower(strings.TrimSpace(s)) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown actuator %q", s)
}

// All returns every actuator in a fixed order.
func All() []Name {
	out := make([]Name, numActuators)
	for i := range out {
		out[i] = Name(i)
	}
	return out
}

// Command asks a bank to drive one output to a level.
type Command struct {
	Name Name
	On   bool
}

func (c Command) String() string {
	if c.On {
		return c.Name.String() + "=on"
	}
	return c.Name.String() + "=off"
}

// Outputs is the level of every actuator, indexed by Name.
type Outputs [numActuators]bool

// On reports whether n is driven on.
func (o Outputs) On(n Name) bool {
	if n < 0 || n >= numActuators {
		return false
	}
	return o[n]
}

// Apply returns a copy of o with c applied.
func (o Outputs) Apply(c Command) Outputs {
	if c.Name >= 0 && c.Name < numActuators {
		o[c.Name] = c.On
	}
	return o
}

// Map returns the levels keyed by actuator name, for JSON output.
func (o Outputs) Map() map[string]bool {
	m := make(map[string]bool, numActuators)
	for _, n := range All() {
		m[n.String()] = o[n]
	}
	return m
}

// Bank drives the physical outputs. Set must be idempotent: setting an output
// to the level it already has is harmless.
type Bank interface {
	Set(n Name, on bool) error
}

// Apply sends cmds to bank in order. It stops at the first failure.
func Apply(bank Bank, cmds []Command) error {
	for _, c := range cmds {
		if err := bank.Set(c.Name, c.On); err != nil {
			return fmt.Errorf("set %s: %w", c, err)
		}
	}
	return nil
}

// Recorder is an in-memory bank that remembers every command it received.
type Recorder struct {
	mu       sync.Mutex
	outputs  Outputs
	commands []Command
}

// NewRecorder creates an empty recorder with every output off.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Set implements Bank.
func (r *Recorder) Set(n Name, on bool) error {
	if n < 0 || n >= numActuators {
		return fmt.Errorf("unknown actuator %d", int(n))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[n] = on
	r.commands = append(r.commands, Command{Name: n, On: on})
	return nil
}

// Outputs returns the current levels.
func (r *Recorder) Outputs() Outputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs
}

// Commands returns a copy of the command history.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Reset clears the command history, keeping the levels.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
}
