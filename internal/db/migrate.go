package db

import (
	"fmt"
	"time"

	"github.com/zulandar/intellifactory/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Machine{},
		&models.Order{},
		&models.EnergyPrice{},
		&models.AgentDecision{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Reset drops every table and migrates them again.
func Reset(db *gorm.DB) error {
	if err := db.Migrator().DropTable(AllModels()...); err != nil {
		return fmt.Errorf("db: drop tables: %w", err)
	}
	return AutoMigrate(db)
}

// SeedResult reports what Seed inserted.
type SeedResult struct {
	Machines     int
	Orders       int
	EnergyPrices int
}

// Seed replaces machines, orders and energy prices with the demo factory:
// four machines, two pending orders and twelve hourly prices with a peak
// window three hours long. Rows carry fixed ids so advisors and clients see
// machines 1-4 after every reseed. The decision audit log is left alone.
func Seed(db *gorm.DB, now time.Time) (SeedResult, error) {
	now = now.UTC()
	machines := []models.Machine{
		{ID: 1, Name: "CNC Lathe", Status: models.MachineRunning, Utilization: 75.3, EnergyUsage: 12.5},
		{ID: 2, Name: "Milling Machine", Status: models.MachineIdle, Utilization: 30.0, EnergyUsage: 4.2},
		{ID: 3, Name: "3D Printer", Status: models.MachineRunning, Utilization: 60.0, EnergyUsage: 8.1},
		{ID: 4, Name: "Assembly Robot", Status: models.MachineMaintenance, Utilization: 0, EnergyUsage: 0},
	}
	orders := []models.Order{
		{ID: 1, Customer: "Alpha Corp", Quantity: 500, Deadline: now.Add(48 * time.Hour), Status: models.OrderPending},
		{ID: 2, Customer: "Beta Ltd", Quantity: 200, Deadline: now.Add(24 * time.Hour), Status: models.OrderPending},
	}
	prices := make([]models.EnergyPrice, 0, 12)
	for i := 0; i < 12; i++ {
		price := 0.10
		if i >= 6 && i <= 8 {
			price = 0.25
		}
		prices = append(prices, models.EnergyPrice{
			ID:          uint(i + 1),
			Timestamp:   now.Add(-time.Duration(i) * time.Hour),
			PricePerKWh: price,
		})
	}

	upsert := func(cols ...string) clause.OnConflict {
		return clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id > ?", len(machines)).Delete(&models.Machine{}).Error; err != nil {
			return fmt.Errorf("clear machines: %w", err)
		}
		if err := tx.Where("id > ?", len(orders)).Delete(&models.Order{}).Error; err != nil {
			return fmt.Errorf("clear orders: %w", err)
		}
		if err := tx.Where("id > ?", len(prices)).Delete(&models.EnergyPrice{}).Error; err != nil {
			return fmt.Errorf("clear energy prices: %w", err)
		}
		if err := tx.Clauses(upsert("name", "status", "utilization", "energy_usage")).Create(&machines).Error; err != nil {
			return fmt.Errorf("upsert machines: %w", err)
		}
		if err := tx.Clauses(upsert("customer", "quantity", "deadline", "status")).Create(&orders).Error; err != nil {
			return fmt.Errorf("upsert orders: %w", err)
		}
		if err := tx.Clauses(upsert("timestamp", "price_per_kwh")).Create(&prices).Error; err != nil {
			return fmt.Errorf("upsert energy prices: %w", err)
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("db: seed: %w", err)
	}
	return SeedResult{Machines: len(machines), Orders: len(orders), EnergyPrices: len(prices)}, nil
}
