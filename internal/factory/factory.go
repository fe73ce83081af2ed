package factory

import (
	"fmt"
	"time"

	"go-meter-reader/internal/camera"
	"go-meter-reader/internal/camera/device"
	"go-meter-reader/internal/config"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/repository"
	"go-meter-reader/internal/storage"
)

// DirectorySettle is how long a dropped file must stay quiet before it is
// loaded by the directory camera source.
const DirectorySettle = 250 * time.Millisecond

// SourceFactory creates camera sources
type SourceFactory interface {
	CreateSource(cfg *config.Config) (camera.Source, error)
}

// StorageFactory creates preview stores
type StorageFactory interface {
	CreateStorage(cfg *config.Config) (storage.PreviewStore, error)
}

// RepositoryFactory creates reading repositories
type RepositoryFactory interface {
	CreateRepository(cfg *config.Config) (repository.ReadingRepository, error)
}

type sourceFactory struct{}

// NewSourceFactory creates a new camera source factory
func NewSourceFactory() SourceFactory {
	return &sourceFactory{}
}

// CreateSource creates a source for cfg.CameraSource
func (f *sourceFactory) CreateSource(cfg *config.Config) (camera.Source, error) {
	switch cfg.CameraSource {
	case config.CameraSourceDevice:
		return device.NewSource(cfg.CameraDeviceID), nil
	case config.CameraSourceSnapshot:
		return camera.NewSnapshotSource(cfg.CameraSnapshotURL), nil
	case config.CameraSourceDirectory:
		return camera.NewDirectorySource(cfg.CameraWatchDir, DirectorySettle), nil
	default:
		return nil, fmt.Errorf("unsupported camera source: %s", cfg.CameraSource)
	}
}

type storageFactory struct{}

// NewStorageFactory creates a new storage factory
func NewStorageFactory() StorageFactory {
	return &storageFactory{}
}

// CreateStorage creates a preview store for cfg.PreviewStorage
func (f *storageFactory) CreateStorage(cfg *config.Config) (storage.PreviewStore, error) {
	switch cfg.PreviewStorage {
	case config.PreviewStorageLocal:
		return storage.NewLocalStorage(cfg.PreviewDir)
	case config.PreviewStorageAzure:
		return storage.NewAzureStorage(cfg.AzureStorageAccount, cfg.AzureStorageKey, cfg.AzureStorageContainer)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.PreviewStorage)
	}
}

type repositoryFactory struct{}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory() RepositoryFactory {
	return &repositoryFactory{}
}

// CreateRepository opens Postgres when a DSN is configured and falls back to
// process memory otherwise.
func (f *repositoryFactory) CreateRepository(cfg *config.Config) (repository.ReadingRepository, error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("DB_DSN not set, readings are kept in memory")
		return repository.NewMemoryReadingRepository(), nil
	}
	return repository.OpenPostgres(cfg.DatabaseDSN, cfg.DBAutoMigrate)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	SourceFactory     SourceFactory
	StorageFactory    StorageFactory
	RepositoryFactory RepositoryFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		SourceFactory:     NewSourceFactory(),
		StorageFactory:    NewStorageFactory(),
		RepositoryFactory: NewRepositoryFactory(),
	}
}
