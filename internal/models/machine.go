package models

// Machine statuses.
const (
	MachineIdle        = "idle"
	MachineRunning     = "running"
	MachineMaintenance = "maintenance"
)

// Machine is one piece of shop-floor equipment.
type Machine struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	Name        string  `gorm:"size:50;not null"`
	Status      string  `gorm:"size:20;default:idle;index"`
	Utilization float64 `gorm:"default:0"` // percent, 0–100
	EnergyUsage float64 `gorm:"default:0"` // kWh
}

// ValidMachineStatus reports whether s is a known machine status.
func ValidMachineStatus(s string) bool {
	switch s {
	case MachineIdle, MachineRunning, MachineMaintenance:
		return true
	}
	return false
}
