// Package decision defines the typed advisor output (Decision, Action, Impact)
// and the constructive parser that turns raw advisor text into one.
package decision

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ActionType is the kind of mutation an advisor may request.
type ActionType string

const (
	IncreaseSpeed       ActionType = "increase_speed"
	ReduceSpeed         ActionType = "reduce_speed"
	ScheduleMaintenance ActionType = "schedule_maintenance"
	ReassignJob         ActionType = "reassign_job"
)

// AllowedActions returns the action types the advisor contract permits, in
// a stable order.
func AllowedActions() []ActionType {
	return []ActionType{IncreaseSpeed, ReduceSpeed, ScheduleMaintenance, ReassignJob}
}

// Valid reports whether t is in the allowed set.
func (t ActionType) Valid() bool {
	switch t {
	case IncreaseSpeed, ReduceSpeed, ScheduleMaintenance, ReassignJob:
		return true
	}
	return false
}

// Number is a lenient numeric field. JSON numbers and numeric strings decode
// to their value; anything else (null, bool, object, junk text) decodes to 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	var text string
	switch b[0] {
	case '"':
		if err := json.Unmarshal(b, &text); err != nil {
			return nil
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(b)
	default:
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = Number(f)
	return nil
}

// MachineRef is the machine_id of an action as the advisor sent it: usually a
// JSON number, sometimes a numeric string. It keeps the textual form so an
// unresolvable id can still be logged.
type MachineRef string

// UnmarshalJSON implements json.Unmarshaler. Strings are unquoted; every
// other JSON value is kept verbatim.
func (r *MachineRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = MachineRef(s)
		return nil
	}
	if string(b) == "null" {
		*r = ""
		return nil
	}
	*r = MachineRef(b)
	return nil
}

// MarshalJSON emits the id as a number when it resolves, else as a string.
func (r MachineRef) MarshalJSON() ([]byte, error) {
	if id, ok := r.Int(); ok {
		return []byte(strconv.FormatUint(uint64(id), 10)), nil
	}
	return json.Marshal(string(r))
}

// Int coerces the reference to a positive machine id. "3", 3 and 3.0 all
// resolve to 3; fractional, negative, zero or non-numeric references do not.
func (r MachineRef) Int() (uint, bool) {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseUint(s, 10, 0); err == nil {
		return uint(id), id > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f != math.Trunc(f) || f > math.MaxUint32 {
		return 0, false
	}
	return uint(f), true
}

// Action is one requested mutation inside a Decision.
type Action struct {
	MachineID MachineRef `json:"machine_id"`
	Type      ActionType `json:"action"`
	Value     Number     `json:"value"`
}

// Impact is the advisor's estimate of a decision's effect.
type Impact struct {
	ThroughputChangePercent Number `json:"throughput_change_percent"`
	EnergyChangePercent     Number `json:"energy_change_percent"`
	Notes                   string `json:"notes"`
}

// Decision is the validated (or fallback) output of one advisor invocation
// for one agent role. Treat it as immutable once built.
type Decision struct {
	Agent       string          `json:"agent"`
	GeneratedAt time.Time       `json:"generated_at"`
	Actions     []Action        `json:"actions"`
	Impact      Impact          `json:"impact"`
	Attempts    int             `json:"attempts"`
	Fallback    bool            `json:"fallback,omitempty"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}
