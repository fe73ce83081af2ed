package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/observer"
	"go-meter-reader/internal/repository"
	"go-meter-reader/pkg/models"
	"go-meter-reader/pkg/validation"
)

// DefaultListLimit caps GET /readings when no limit is given.
const DefaultListLimit = 100

// ReadingService hands confirmed values to persistence.
type ReadingService interface {
	// Save validates value and stores it for userID
	Save(ctx context.Context, userID, value string, offline bool, opts ...SaveOption) (*models.Reading, error)

	// Get returns one of the user's readings
	Get(ctx context.Context, userID, id string) (*models.Reading, error)

	// List returns the user's readings, newest first
	List(ctx context.Context, userID string, limit int) ([]models.Reading, error)
}

type saveConfig struct {
	sessionID string
	rawText   string
}

// SaveOption annotates a saved reading.
type SaveOption func(*saveConfig)

// FromCapture links the reading to the capture run that produced it.
func FromCapture(sessionID, rawText string) SaveOption {
	return func(c *saveConfig) {
		c.sessionID = sessionID
		c.rawText = rawText
	}
}

type readingService struct {
	repo   repository.ReadingRepository
	events observer.Subject
}

// NewReadingService creates a reading service. events may be nil.
func NewReadingService(repo repository.ReadingRepository, events observer.Subject) ReadingService {
	return &readingService{repo: repo, events: events}
}

func (s *readingService) Save(ctx context.Context, userID, value string, offline bool, opts ...SaveOption) (*models.Reading, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewUnauthorizedError("a signed-in user is required to save readings", nil)
	}
	v, err := validation.ParseReading(value)
	if err != nil {
		return nil, err
	}

	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	reading := &repository.Reading{
		UserID:    userID,
		Value:     v,
		RawText:   cfg.rawText,
		SessionID: cfg.sessionID,
		Offline:   offline,
		Timestamp: time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, reading); err != nil {
		if errors.Is(err, repository.ErrInvalidReading) {
			return nil, apperrors.NewValidationError("invalid reading", err)
		}
		return nil, apperrors.NewInternalError("failed to save reading", err)
	}

	logger.WithFields(logrus.Fields{
		"reading_id": reading.ID.String(),
		"user_id":    userID,
		"offline":    offline,
		"session_id": cfg.sessionID,
	}).Info("Reading saved")

	if s.events != nil {
		s.events.NotifyObservers(context.WithoutCancel(ctx), observer.CaptureEvent{
			EventType: observer.ReadingSaved,
			SessionID: cfg.sessionID,
			Number:    value,
			Success:   true,
			Metadata:  map[string]interface{}{"reading_id": reading.ID.String()},
		})
	}

	out := toModel(reading)
	return &out, nil
}

func (s *readingService) Get(ctx context.Context, userID, id string) (*models.Reading, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewUnauthorizedError("a signed-in user is required to read readings", nil)
	}
	readingID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperrors.NewValidationError("reading id is not a valid UUID", err)
	}

	reading, err := s.repo.Get(ctx, userID, readingID)
	if err != nil {
		if errors.Is(err, repository.ErrReadingNotFound) {
			return nil, apperrors.NewNotFoundError("reading not found", err)
		}
		return nil, apperrors.NewInternalError("failed to load reading", err)
	}

	out := toModel(reading)
	return &out, nil
}

func (s *readingService) List(ctx context.Context, userID string, limit int) ([]models.Reading, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewUnauthorizedError("a signed-in user is required to list readings", nil)
	}
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	readings, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list readings", err)
	}

	out := make([]models.Reading, 0, len(readings))
	for _, r := range readings {
		out = append(out, toModel(r))
	}
	return out, nil
}

func toModel(r *repository.Reading) models.Reading {
	return models.Reading{
		ID:        r.ID.String(),
		Value:     r.Value,
		Offline:   r.Offline,
		SessionID: r.SessionID,
		Timestamp: r.Timestamp,
	}
}
