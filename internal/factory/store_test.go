package factory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/zulandar/intellifactory/internal/db"
	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	gormDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if _, err := db.Seed(gormDB, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed test db: %v", err)
	}
	return NewStore(gormDB)
}

func TestSnapshot(t *testing.T) {
	s := openTestStore(t)

	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Machines) != 4 {
		t.Fatalf("len(Machines) = %d, want 4", len(snap.Machines))
	}
	if snap.Machines[0].Name != "CNC Lathe" || snap.Machines[0].Utilization != 75.3 {
		t.Errorf("Machines[0] = %+v, want CNC Lathe at 75.3", snap.Machines[0])
	}
	if len(snap.Orders) != 2 {
		t.Errorf("len(Orders) = %d, want 2", len(snap.Orders))
	}
	if len(snap.EnergyPrices) != 12 {
		t.Errorf("len(EnergyPrices) = %d, want 12", len(snap.EnergyPrices))
	}
	for i := 1; i < len(snap.EnergyPrices); i++ {
		if snap.EnergyPrices[i].Timestamp.Before(snap.EnergyPrices[i-1].Timestamp) {
			t.Fatal("energy prices not in time order")
		}
	}
	if snap.Context == "" {
		t.Error("Context should be set")
	}
}

func TestSnapshot_JSONShape(t *testing.T) {
	s := openTestStore(t)
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"machines", "orders", "energy_prices", "context"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("snapshot JSON missing %q", key)
		}
	}
	m := generic["machines"].([]any)[0].(map[string]any)
	for _, key := range []string{"id", "name", "status", "utilization", "energy_usage"} {
		if _, ok := m[key]; !ok {
			t.Errorf("machine JSON missing %q", key)
		}
	}
}

func TestMachine_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Machine(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFirstPendingOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	o, err := s.FirstPendingOrder(ctx)
	if err != nil {
		t.Fatalf("FirstPendingOrder: %v", err)
	}
	if o.Customer != "Alpha Corp" {
		t.Errorf("Customer = %q, want %q (storage order)", o.Customer, "Alpha Corp")
	}

	err = s.Commit(ctx, func(tx Tx) error {
		o.Status = models.OrderCompleted
		return tx.SaveOrder(o)
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	o, err = s.FirstPendingOrder(ctx)
	if err != nil {
		t.Fatalf("FirstPendingOrder: %v", err)
	}
	if o.Customer != "Beta Ltd" {
		t.Errorf("Customer = %q, want %q", o.Customer, "Beta Ltd")
	}
}

func TestFirstPendingOrder_None(t *testing.T) {
	s := openTestStore(t)
	s.db.Model(&models.Order{}).Where("1 = 1").Update("status", models.OrderInProgress)

	_, err := s.FirstPendingOrder(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCommit_Success(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Commit(ctx, func(tx Tx) error {
		m, err := tx.Machine(2)
		if err != nil {
			return err
		}
		m.Utilization = 55
		m.Status = models.MachineRunning
		return tx.SaveMachine(m)
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	m, err := s.Machine(ctx, 2)
	if err != nil {
		t.Fatalf("Machine: %v", err)
	}
	if m.Utilization != 55 || m.Status != models.MachineRunning {
		t.Errorf("machine 2 = %+v, want running at 55", m)
	}
}

func TestCommit_RollbackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Commit(ctx, func(tx Tx) error {
		m, err := tx.Machine(1)
		if err != nil {
			return err
		}
		m.Utilization = 5
		if err := tx.SaveMachine(m); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	m, err := s.Machine(ctx, 1)
	if err != nil {
		t.Fatalf("Machine: %v", err)
	}
	if m.Utilization != 75.3 {
		t.Errorf("utilization = %v, want 75.3 (rolled back)", m.Utilization)
	}
}

func TestSaveDecision_AndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ok, err := decision.Parse("ProductionAgent", `{"actions":[{"machine_id":1,"action":"increase_speed","value":5}],"impact":{"notes":"go"}}`, base)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ok.Attempts = 1
	fb := decision.Fallback("EnergyAgent", 3, "garbage", decision.ErrEmptyResponse, base.Add(time.Minute))

	for _, d := range []decision.Decision{ok, fb} {
		if err := s.SaveDecision(ctx, d); err != nil {
			t.Fatalf("SaveDecision(%s): %v", d.Agent, err)
		}
	}

	recs, err := s.RecentDecisions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].Agent != "EnergyAgent" || !recs[0].Fallback || recs[0].Impact != "fallback" {
		t.Errorf("recs[0] = %+v, want newest fallback from EnergyAgent", recs[0])
	}
	if recs[1].Agent != "ProductionAgent" || recs[1].Fallback {
		t.Errorf("recs[1] = %+v, want parsed ProductionAgent", recs[1])
	}

	var back decision.Decision
	if err := json.Unmarshal(recs[1].Decision, &back); err != nil {
		t.Fatalf("decode stored decision: %v", err)
	}
	if len(back.Actions) != 1 || back.Actions[0].Type != decision.IncreaseSpeed {
		t.Errorf("stored actions = %+v", back.Actions)
	}
}

func TestRecentDecisions_Limit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d := decision.Fallback("QualityAgent", 3, "", nil, time.Now().Add(time.Duration(i)*time.Second))
		if err := s.SaveDecision(ctx, d); err != nil {
			t.Fatalf("SaveDecision: %v", err)
		}
	}
	recs, err := s.RecentDecisions(ctx, 3)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("len = %d, want 3", len(recs))
	}
}
