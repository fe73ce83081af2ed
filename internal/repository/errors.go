package repository

import "errors"

var (
	// ErrReadingNotFound indicates the reading was not found
	ErrReadingNotFound = errors.New("reading not found")

	// ErrInvalidReading indicates a reading failed basic integrity checks
	ErrInvalidReading = errors.New("invalid reading")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
