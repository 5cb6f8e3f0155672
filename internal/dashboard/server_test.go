package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/intellifactory/internal/db"
	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/events"
	"github.com/zulandar/intellifactory/internal/factory"
	"github.com/zulandar/intellifactory/internal/orchestration"
	"github.com/zulandar/intellifactory/internal/simulation"
)

// --- Mock runner ---

type mockRunner struct {
	agentErr error
	allErr   error
	ranAgent string
}

func (m *mockRunner) RunAgent(ctx context.Context, name string) (*orchestration.AgentResult, error) {
	m.ranAgent = name
	if m.agentErr != nil {
		return nil, m.agentErr
	}
	return &orchestration.AgentResult{
		Decision: decision.Decision{Agent: "ProductionAgent", Actions: []decision.Action{}, Attempts: 1},
		Updates:  []simulation.Update{{MachineID: 1, NewStatus: "running", NewUtilization: 80}},
	}, nil
}

func (m *mockRunner) RunAll(ctx context.Context) (*orchestration.RunAllResult, error) {
	if m.allErr != nil {
		return nil, m.allErr
	}
	return &orchestration.RunAllResult{
		Agents:  map[string]decision.Decision{"production_agent": {Agent: "ProductionAgent"}},
		Updates: []simulation.Update{},
	}, nil
}

func testStore(t *testing.T) *factory.Store {
	t.Helper()
	gormDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Seed(gormDB, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return factory.NewStore(gormDB)
}

func testServer(t *testing.T, runner *mockRunner, hub *events.Hub, heartbeat time.Duration) *httptest.Server {
	t.Helper()
	router, err := NewRouter(StartOpts{Store: testStore(t), Runner: runner, Hub: hub, Heartbeat: heartbeat})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRouter_RequiresCollaborators(t *testing.T) {
	store := testStore(t)
	tests := []struct {
		name string
		opts StartOpts
		want string
	}{
		{"no store", StartOpts{Runner: &mockRunner{}, Hub: events.NewHub(1)}, "store is required"},
		{"no runner", StartOpts{Store: store, Hub: events.NewHub(1)}, "runner is required"},
		{"no hub", StartOpts{Store: store, Runner: &mockRunner{}}, "hub is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter(tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestStart_NilStore(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil {
		t.Fatal("expected error for nil store")
	}
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestIndex(t *testing.T) {
	srv := testServer(t, &mockRunner{}, events.NewHub(4), 0)
	var body map[string]string
	if code := getJSON(t, srv.URL+"/", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !strings.Contains(body["message"], "running") {
		t.Errorf("message = %q", body["message"])
	}
}

func TestDataRoutes(t *testing.T) {
	srv := testServer(t, &mockRunner{}, events.NewHub(4), 0)

	var machines []map[string]any
	if code := getJSON(t, srv.URL+"/api/machines", &machines); code != http.StatusOK {
		t.Fatalf("machines status = %d", code)
	}
	if len(machines) != 4 {
		t.Errorf("len(machines) = %d, want 4", len(machines))
	}
	if machines[0]["name"] != "CNC Lathe" {
		t.Errorf("machines[0].name = %v", machines[0]["name"])
	}

	var orders []map[string]any
	getJSON(t, srv.URL+"/api/orders", &orders)
	if len(orders) != 2 {
		t.Errorf("len(orders) = %d, want 2", len(orders))
	}

	var prices []map[string]any
	getJSON(t, srv.URL+"/api/energy", &prices)
	if len(prices) != 12 {
		t.Errorf("len(prices) = %d, want 12", len(prices))
	}
	if _, ok := prices[0]["price_per_kwh"]; !ok {
		t.Error("price missing price_per_kwh")
	}

	var decisions []map[string]any
	if code := getJSON(t, srv.URL+"/api/decisions", &decisions); code != http.StatusOK {
		t.Fatalf("decisions status = %d", code)
	}
	if len(decisions) != 0 {
		t.Errorf("len(decisions) = %d, want 0", len(decisions))
	}
}

func TestDecisions_BadLimit(t *testing.T) {
	srv := testServer(t, &mockRunner{}, events.NewHub(4), 0)
	if code := getJSON(t, srv.URL+"/api/decisions?limit=abc", nil); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestRunAgent(t *testing.T) {
	runner := &mockRunner{}
	srv := testServer(t, runner, events.NewHub(4), 0)

	resp, err := http.Post(srv.URL+"/api/agents/production", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if runner.ranAgent != "production" {
		t.Errorf("ranAgent = %q, want production", runner.ranAgent)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["decision"]; !ok {
		t.Error("response missing decision")
	}
	if _, ok := body["updates"]; !ok {
		t.Error("response missing updates")
	}
}

func TestRunAgent_Unknown(t *testing.T) {
	runner := &mockRunner{agentErr: orchestration.ErrUnknownAgent}
	srv := testServer(t, runner, events.NewHub(4), 0)

	resp, err := http.Post(srv.URL+"/api/agents/finance", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRunAll(t *testing.T) {
	srv := testServer(t, &mockRunner{}, events.NewHub(4), 0)

	resp, err := http.Post(srv.URL+"/api/agents/run_all", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Agents  map[string]any `json:"agents"`
		Updates []any          `json:"updates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body.Agents["production_agent"]; !ok {
		t.Error("agents missing production_agent")
	}
}

func TestRunAll_Error(t *testing.T) {
	srv := testServer(t, &mockRunner{allErr: errors.New("snapshot failed")}, events.NewHub(4), 0)

	resp, err := http.Post(srv.URL+"/api/agents/run_all", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := testServer(t, &mockRunner{}, events.NewHub(4), 0)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/machines", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

// readFrame reads one SSE frame (event and data lines up to the blank line).
func readFrame(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSSE_StreamsHubEvents(t *testing.T) {
	hub := events.NewHub(8)
	srv := testServer(t, &mockRunner{}, hub, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	r := bufio.NewReader(resp.Body)

	if ev, _ := readFrame(t, r); ev != "connected" {
		t.Fatalf("first frame = %q, want connected", ev)
	}
	if hub.Len() != 1 {
		t.Fatalf("hub.Len() = %d, want 1", hub.Len())
	}

	hub.Publish(events.New(events.TypeDecision, decision.Decision{Agent: "EnergyAgent", Actions: []decision.Action{}}))
	hub.Publish(events.New(events.TypeStateUpdate, []simulation.Update{{MachineID: 2, NewStatus: "idle", NewUtilization: 40}}))

	ev, data := readFrame(t, r)
	if ev != "decision" {
		t.Errorf("event = %q, want decision", ev)
	}
	if !strings.Contains(data, `"agent":"EnergyAgent"`) {
		t.Errorf("data = %s", data)
	}

	ev, data = readFrame(t, r)
	if ev != "state_update" {
		t.Errorf("event = %q, want state_update", ev)
	}
	var updates []simulation.Update
	if err := json.Unmarshal([]byte(data), &updates); err != nil {
		t.Fatalf("decode updates: %v", err)
	}
	if len(updates) != 1 || updates[0].MachineID != 2 {
		t.Errorf("updates = %+v", updates)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub.Len() = %d after disconnect, want 0", hub.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSSE_Heartbeat(t *testing.T) {
	hub := events.NewHub(8)
	srv := testServer(t, &mockRunner{}, hub, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)

	readFrame(t, r) // connected
	if ev, data := readFrame(t, r); ev != "heartbeat" || !strings.Contains(data, "timestamp") {
		t.Errorf("frame = %q %s, want heartbeat", ev, data)
	}
}

func TestWriteSSE(t *testing.T) {
	var b strings.Builder
	writeSSE(&b, "state_update", []int{1})
	if got, want := b.String(), "event: state_update\ndata: [1]\n\n"; got != want {
		t.Errorf("writeSSE = %q, want %q", got, want)
	}
}
