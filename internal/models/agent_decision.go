package models

import "time"

// AgentDecision is the append-only audit record of one advisor invocation.
// Decision holds the full JSON document; rows are never updated.
type AgentDecision struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	AgentName string `gorm:"size:30;not null;index"`
	Decision  string `gorm:"type:text;not null"`
	Impact    string `gorm:"size:100"`
	Fallback  bool   `gorm:"default:false"`
	Attempts  int
	CreatedAt time.Time `gorm:"index"`
}
