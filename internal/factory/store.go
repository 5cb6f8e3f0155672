// Package factory is the state store: machines, orders, energy prices and the
// decision audit log, backed by GORM.
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a machine or order does not exist.
var ErrNotFound = errors.New("factory: not found")

// MachineState is the snapshot view of a machine.
type MachineState struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Utilization float64 `json:"utilization"`
	EnergyUsage float64 `json:"energy_usage"`
}

// OrderState is the snapshot view of an order.
type OrderState struct {
	ID       uint      `json:"id"`
	Customer string    `json:"customer"`
	Quantity int       `json:"quantity"`
	Deadline time.Time `json:"deadline"`
	Status   string    `json:"status"`
}

// PricePoint is the snapshot view of an energy price.
type PricePoint struct {
	Timestamp   time.Time `json:"timestamp"`
	PricePerKWh float64   `json:"price_per_kwh"`
}

// Snapshot is a point-in-time copy of factory state, the shape sent to advisors.
type Snapshot struct {
	Machines     []MachineState `json:"machines"`
	Orders       []OrderState   `json:"orders"`
	EnergyPrices []PricePoint   `json:"energy_prices"`
	Context      string         `json:"context"`
}

// Tx is the mutation surface available inside Store.Commit. Everything done
// through a Tx commits together or not at all.
type Tx interface {
	Machine(id uint) (*models.Machine, error)
	FirstPendingOrder() (*models.Order, error)
	SaveMachine(m *models.Machine) error
	SaveOrder(o *models.Order) error
}

// Store is the GORM-backed state store.
type Store struct {
	db *gorm.DB

	// writeMu serializes Commit so concurrent read-modify-write cycles on the
	// same machine cannot interleave.
	writeMu sync.Mutex
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Snapshot reads all machines, orders and energy prices.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Context: "Optimization run"}
	var err error
	if snap.Machines, err = s.Machines(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Orders, err = s.Orders(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.EnergyPrices, err = s.EnergyPrices(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Machines returns all machines ordered by id.
func (s *Store) Machines(ctx context.Context) ([]MachineState, error) {
	var rows []models.Machine
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("factory: list machines: %w", err)
	}
	out := make([]MachineState, len(rows))
	for i, m := range rows {
		out[i] = machineState(m)
	}
	return out, nil
}

// Orders returns all orders ordered by id.
func (s *Store) Orders(ctx context.Context) ([]OrderState, error) {
	var rows []models.Order
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("factory: list orders: %w", err)
	}
	out := make([]OrderState, len(rows))
	for i, o := range rows {
		out[i] = OrderState{
			ID:       o.ID,
			Customer: o.Customer,
			Quantity: o.Quantity,
			Deadline: o.Deadline,
			Status:   o.Status,
		}
	}
	return out, nil
}

// EnergyPrices returns the price curve in time order.
func (s *Store) EnergyPrices(ctx context.Context) ([]PricePoint, error) {
	var rows []models.EnergyPrice
	if err := s.db.WithContext(ctx).Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("factory: list energy prices: %w", err)
	}
	out := make([]PricePoint, len(rows))
	for i, p := range rows {
		out[i] = PricePoint{Timestamp: p.Timestamp, PricePerKWh: p.PricePerKWh}
	}
	return out, nil
}

// Machine loads one machine outside any transaction.
func (s *Store) Machine(ctx context.Context, id uint) (*models.Machine, error) {
	return (&gormTx{db: s.db.WithContext(ctx)}).Machine(id)
}

// FirstPendingOrder loads the oldest pending order outside any transaction.
func (s *Store) FirstPendingOrder(ctx context.Context) (*models.Order, error) {
	return (&gormTx{db: s.db.WithContext(ctx)}).FirstPendingOrder()
}

// Commit runs fn inside one database transaction. If fn returns an error, or
// the commit itself fails, nothing fn did is persisted.
func (s *Store) Commit(ctx context.Context, fn func(Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	if err != nil {
		return fmt.Errorf("factory: commit: %w", err)
	}
	return nil
}

// SaveDecision appends d to the audit log.
func (s *Store) SaveDecision(ctx context.Context, d decision.Decision) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("factory: marshal decision: %w", err)
	}
	impact := "parsed"
	if d.Fallback {
		impact = "fallback"
	}
	row := models.AgentDecision{
		AgentName: d.Agent,
		Decision:  string(body),
		Impact:    impact,
		Fallback:  d.Fallback,
		Attempts:  d.Attempts,
		CreatedAt: d.GeneratedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("factory: save decision for %s: %w", d.Agent, err)
	}
	return nil
}

// DecisionRecord is an audit row as served to API clients.
type DecisionRecord struct {
	ID        uint            `json:"id"`
	Agent     string          `json:"agent"`
	Decision  json.RawMessage `json:"decision"`
	Impact    string          `json:"impact"`
	Fallback  bool            `json:"fallback"`
	CreatedAt time.Time       `json:"created_at"`
}

// RecentDecisions returns up to limit audit rows, newest first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.AgentDecision
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("factory: recent decisions: %w", err)
	}
	out := make([]DecisionRecord, len(rows))
	for i, r := range rows {
		body := json.RawMessage(r.Decision)
		if !json.Valid(body) {
			body, _ = json.Marshal(r.Decision)
		}
		out[i] = DecisionRecord{
			ID:        r.ID,
			Agent:     r.AgentName,
			Decision:  body,
			Impact:    r.Impact,
			Fallback:  r.Fallback,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Machine(id uint) (*models.Machine, error) {
	var m models.Machine
	if err := t.db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: machine %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("factory: get machine %d: %w", id, err)
	}
	return &m, nil
}

func (t *gormTx) FirstPendingOrder() (*models.Order, error) {
	var o models.Order
	if err := t.db.Where("status = ?", models.OrderPending).Order("id ASC").First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: pending order", ErrNotFound)
		}
		return nil, fmt.Errorf("factory: first pending order: %w", err)
	}
	return &o, nil
}

func (t *gormTx) SaveMachine(m *models.Machine) error {
	err := t.db.Model(&models.Machine{}).Where("id = ?", m.ID).Updates(map[string]any{
		"status":      m.Status,
		"utilization": m.Utilization,
	}).Error
	if err != nil {
		return fmt.Errorf("factory: save machine %d: %w", m.ID, err)
	}
	return nil
}

func (t *gormTx) SaveOrder(o *models.Order) error {
	if err := t.db.Model(&models.Order{}).Where("id = ?", o.ID).Update("status", o.Status).Error; err != nil {
		return fmt.Errorf("factory: save order %d: %w", o.ID, err)
	}
	return nil
}

func machineState(m models.Machine) MachineState {
	return MachineState{
		ID:          m.ID,
		Name:        m.Name,
		Status:      m.Status,
		Utilization: m.Utilization,
		EnergyUsage: m.EnergyUsage,
	}
}
