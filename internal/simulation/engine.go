// Package simulation applies validated advisor actions to factory state.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/events"
	"github.com/zulandar/intellifactory/internal/factory"
	"github.com/zulandar/intellifactory/internal/logging"
	"github.com/zulandar/intellifactory/internal/models"
)

// Update is the realized effect of one action on one machine.
type Update struct {
	MachineID      uint    `json:"machine_id"`
	NewStatus      string  `json:"new_status"`
	NewUtilization float64 `json:"new_utilization"`
}

// Committer runs a set of mutations as one transaction.
type Committer interface {
	Commit(ctx context.Context, fn func(factory.Tx) error) error
}

// Engine applies actions against a Committer and announces the result.
type Engine struct {
	store Committer
	pub   events.Publisher
	log   logging.Logger
}

// NewEngine creates an Engine. pub and logger may be nil.
func NewEngine(store Committer, pub events.Publisher, logger logging.Logger) *Engine {
	if pub == nil {
		pub = events.PublisherFunc(func(events.Event) {})
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{store: store, pub: pub, log: logger.With("component", "simulation")}
}

// Apply commits every action in one transaction and returns one Update per
// action that resolved to an existing machine. Actions naming unknown machines
// are skipped. If the commit fails nothing is persisted and the result is empty.
// A successful, non-empty apply publishes one state_update event.
func (e *Engine) Apply(ctx context.Context, actions []decision.Action) []Update {
	if len(actions) == 0 {
		return []Update{}
	}

	var updates []Update
	err := e.store.Commit(ctx, func(tx factory.Tx) error {
		updates = make([]Update, 0, len(actions))
		for i, a := range actions {
			u, ok, err := e.applyOne(tx, a)
			if err != nil {
				return fmt.Errorf("action %d (%s): %w", i, a.Type, err)
			}
			if ok {
				updates = append(updates, u)
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error("apply failed, no changes persisted", "actions", len(actions), "err", err)
		return []Update{}
	}

	if len(updates) > 0 {
		e.pub.Publish(events.New(events.TypeStateUpdate, updates))
	}
	return updates
}

// applyOne mutates one machine (or order) through tx. ok is false when the
// action produced no visible effect to report.
func (e *Engine) applyOne(tx factory.Tx, a decision.Action) (Update, bool, error) {
	id, resolvable := a.MachineID.Int()
	if !resolvable {
		e.log.Warn("skipping action with unresolvable machine id", "machine_id", string(a.MachineID), "action", a.Type)
		return Update{}, false, nil
	}
	m, err := tx.Machine(id)
	if errors.Is(err, factory.ErrNotFound) {
		e.log.Warn("skipping action for unknown machine", "machine_id", id, "action", a.Type)
		return Update{}, false, nil
	}
	if err != nil {
		return Update{}, false, err
	}

	switch a.Type {
	case decision.IncreaseSpeed:
		if err := setUtilization(tx, m, m.Utilization+float64(a.Value)); err != nil {
			return Update{}, false, err
		}
	case decision.ReduceSpeed:
		if err := setUtilization(tx, m, m.Utilization-float64(a.Value)); err != nil {
			return Update{}, false, err
		}
	case decision.ScheduleMaintenance:
		if m.Status != models.MachineMaintenance {
			m.Status = models.MachineMaintenance
			if err := tx.SaveMachine(m); err != nil {
				return Update{}, false, err
			}
		}
	case decision.ReassignJob:
		// First pending order in storage order; no capability matching.
		o, err := tx.FirstPendingOrder()
		if errors.Is(err, factory.ErrNotFound) {
			e.log.Info("reassign_job: no pending order", "machine_id", id)
			return Update{}, false, nil
		}
		if err != nil {
			return Update{}, false, err
		}
		o.Status = models.OrderInProgress
		if err := tx.SaveOrder(o); err != nil {
			return Update{}, false, err
		}
	default:
		e.log.Warn("skipping unsupported action", "action", a.Type)
		return Update{}, false, nil
	}

	return Update{MachineID: m.ID, NewStatus: m.Status, NewUtilization: m.Utilization}, true, nil
}

// setUtilization clamps target into [0, 100] and saves when it changed.
func setUtilization(tx factory.Tx, m *models.Machine, target float64) error {
	target = Clamp(target)
	if target == m.Utilization {
		return nil
	}
	m.Utilization = target
	return tx.SaveMachine(m)
}

// Clamp bounds a utilization percentage to [0, 100].
func Clamp(u float64) float64 {
	if math.IsNaN(u) {
		return 0
	}
	return math.Max(0, math.Min(100, u))
}
