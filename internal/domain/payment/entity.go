// internal/domain/payment/entity.go
package payment

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEvent records every gateway event that has been processed.
// The unique event id makes redelivered webhooks no-ops.
type WebhookEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	EventID   string    `json:"event_id" gorm:"uniqueIndex;not null;size:255"`
	EventType string    `json:"event_type" gorm:"not null;size:100"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger is the processed-event store backing webhook idempotency
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a new webhook event ledger
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// MarkProcessed inserts the event id and reports whether this call won
// the insert. A false return means the event was already handled.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	record := &WebhookEvent{EventID: eventID, EventType: eventType}
	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Forget removes an event id so a redelivery is processed again. Called
// when reconciliation of the event failed after the insert.
func (l *Ledger) Forget(ctx context.Context, eventID string) error {
	return l.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&WebhookEvent{}).Error
}
