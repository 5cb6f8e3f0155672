package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestMachine_Fields(t *testing.T) {
	typ := reflect.TypeOf(Machine{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Name", "not null")
	assertGormTag(t, typ, "Status", "default:idle")
	assertGormTag(t, typ, "Status", "index")
	assertFieldType(t, typ, "Utilization", "float64")
	assertFieldType(t, typ, "EnergyUsage", "float64")
}

func TestOrder_Fields(t *testing.T) {
	typ := reflect.TypeOf(Order{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Customer", "not null")
	assertGormTag(t, typ, "Quantity", "not null")
	assertGormTag(t, typ, "Status", "default:pending")
	assertFieldType(t, typ, "Deadline", "time.Time")
}

func TestEnergyPrice_Fields(t *testing.T) {
	typ := reflect.TypeOf(EnergyPrice{})

	assertGormTag(t, typ, "Timestamp", "index")
	assertGormTag(t, typ, "PricePerKWh", "not null")
}

func TestAgentDecision_Fields(t *testing.T) {
	typ := reflect.TypeOf(AgentDecision{})

	assertGormTag(t, typ, "AgentName", "not null")
	assertGormTag(t, typ, "Decision", "type:text")
	assertGormTag(t, typ, "CreatedAt", "index")
	assertFieldType(t, typ, "Fallback", "bool")
}

func TestValidMachineStatus(t *testing.T) {
	for _, s := range []string{MachineIdle, MachineRunning, MachineMaintenance} {
		if !ValidMachineStatus(s) {
			t.Errorf("ValidMachineStatus(%q) = false, want true", s)
		}
	}
	if ValidMachineStatus("broken") {
		t.Error("ValidMachineStatus(broken) = true, want false")
	}
}

func TestValidOrderStatus(t *testing.T) {
	for _, s := range []string{OrderPending, OrderInProgress, OrderCompleted} {
		if !ValidOrderStatus(s) {
			t.Errorf("ValidOrderStatus(%q) = false, want true", s)
		}
	}
	if ValidOrderStatus("shipped") {
		t.Error("ValidOrderStatus(shipped) = true, want false")
	}
}
