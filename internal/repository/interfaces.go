package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReadingRepository persists confirmed meter readings.
type ReadingRepository interface {
	// Save stores a reading, assigning an ID and timestamps when missing
	Save(ctx context.Context, reading *Reading) error

	// Get retrieves one reading of a user
	Get(ctx context.Context, userID string, id uuid.UUID) (*Reading, error)

	// ListByUser returns a user's readings, newest first
	ListByUser(ctx context.Context, userID string, limit int) ([]*Reading, error)
}

// Reading is a confirmed meter value.
type Reading struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Value     float64   `json:"value" gorm:"not null"`
	RawText   string    `json:"raw_text,omitempty"`
	SessionID string    `json:"session_id,omitempty" gorm:"index"`
	Offline   bool      `json:"offline"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table name.
func (Reading) TableName() string {
	return "meter_readings"
}

func (r *Reading) prepare(now time.Time) error {
	if r.UserID == "" || r.Value < 0 {
		return ErrInvalidReading
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	return nil
}
