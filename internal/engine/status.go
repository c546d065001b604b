package engine

import (
	"encoding/json"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
)

// Status is a point-in-time copy of the machine, safe to share with readers
// on other goroutines.
type Status struct {
	State        State
	Phase        Phase
	PhaseStarted time.Time
	ActiveFaults fault.Set
	Latched      fault.Set
	Attempts     int
	MaxRetries   int
	RunStarted   time.Time
	RunID        string
	Outputs      actuator.Outputs
	AlarmAcked   bool
}

// Uptime returns the time since the run timer was set, or 0.
func (s Status) Uptime(now time.Time) time.Duration {
	if s.RunStarted.IsZero() {
		return 0
	}
	return now.Sub(s.RunStarted)
}

// MarshalJSON renders enums by name.
func (s Status) MarshalJSON() ([]byte, error) {
	var runStarted *time.Time
	if !s.RunStarted.IsZero() {
		t := s.RunStarted
		runStarted = &t
	}
	return json.Marshal(struct {
		State        string          `json:"state"`
		Phase        string          `json:"phase"`
		PhaseStarted time.Time       `json:"phase_started"`
		ActiveFaults fault.Set       `json:"active_faults"`
		Latched      fault.Set       `json:"latched_faults"`
		Attempts     int             `json:"start_attempts"`
		MaxRetries   int             `json:"max_retries"`
		RunStarted   *time.Time      `json:"run_started,omitempty"`
		RunID        string          `json:"run_id,omitempty"`
		Outputs      map[string]bool `json:"outputs"`
		AlarmAcked   bool            `json:"alarm_acked"`
	}{
		State:        s.State.String(),
		Phase:        s.Phase.String(),
		PhaseStarted: s.PhaseStarted,
		ActiveFaults: s.ActiveFaults,
		Latched:      s.Latched,
		Attempts:     s.Attempts,
		MaxRetries:   s.MaxRetries,
		RunStarted:   runStarted,
		RunID:        s.RunID,
		Outputs:      s.Outputs.Map(),
		AlarmAcked:   s.AlarmAcked,
	})
}
