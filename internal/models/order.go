package models

import "time"

// Order statuses.
const (
	OrderPending    = "pending"
	OrderInProgress = "in_progress"
	OrderCompleted  = "completed"
)

// Order is a customer order waiting on factory capacity.
type Order struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	Customer string    `gorm:"size:50;not null"`
	Quantity int       `gorm:"not null"`
	Deadline time.Time `gorm:"not null"`
	Status   string    `gorm:"size:20;default:pending;index"`
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderInProgress, OrderCompleted:
		return true
	}
	return false
}

// EnergyPrice is one point on the grid price curve.
type EnergyPrice struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp   time.Time `gorm:"index"`
	PricePerKWh float64   `gorm:"column:price_per_kwh;not null"`
}
