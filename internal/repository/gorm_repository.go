package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"go-meter-reader/internal/logger"
)

// GormReadingRepository stores readings through gorm.
type GormReadingRepository struct {
	db *gorm.DB
}

// OpenPostgres connects to Postgres and optionally migrates the readings table.
// A failed migration is logged and does not stop startup.
func OpenPostgres(dsn string, autoMigrate bool) (*GormReadingRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty DSN", ErrRepositoryUnavailable)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if autoMigrate {
		if err := db.AutoMigrate(&Reading{}); err != nil {
			logger.WithError(err).Warn("Migration warning (meter_readings)")
		}
	}
	return NewGormReadingRepository(db), nil
}

// NewGormReadingRepository wraps an open gorm handle.
func NewGormReadingRepository(db *gorm.DB) *GormReadingRepository {
	return &GormReadingRepository{db: db}
}

func (r *GormReadingRepository) Save(ctx context.Context, reading *Reading) error {
	if err := reading.prepare(time.Now().UTC()); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(reading).Error; err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

func (r *GormReadingRepository) Get(ctx context.Context, userID string, id uuid.UUID) (*Reading, error) {
	var reading Reading
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reading: %w", err)
	}
	return &reading, nil
}

func (r *GormReadingRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*Reading, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var readings []*Reading
	if err := q.Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return readings, nil
}

// Close releases the underlying connection pool.
func (r *GormReadingRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
