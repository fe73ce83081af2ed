package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go-meter-reader/pkg/validation"
)

// Camera source kinds.
const (
	CameraSourceDevice    = "device"
	CameraSourceSnapshot  = "snapshot"
	CameraSourceDirectory = "directory"
)

// Preview storage kinds.
const (
	PreviewStorageLocal = "local"
	PreviewStorageAzure = "azure"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Capture pipeline
	CaptureAttempts    int
	CapturePacing      time.Duration
	RecognitionTimeout time.Duration
	OCRLanguage        string
	TessdataPrefix     string

	// Camera
	CameraSource      string
	CameraDeviceID    int
	CameraSnapshotURL string
	CameraWatchDir    string

	// Preview storage
	PreviewStorage        string
	PreviewDir            string
	AzureStorageAccount   string
	AzureStorageKey       string
	AzureStorageContainer string

	// Readings persistence
	DatabaseDSN   string
	DBAutoMigrate bool
	JWTSecret     string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// ReadingsEnabled reports whether the authenticated readings endpoints are served.
func (c *Config) ReadingsEnabled() bool {
	return c.JWTSecret != ""
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 1024*1024), // 1MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),

		CaptureAttempts:    int(parseIntOrDefault("CAPTURE_ATTEMPTS", 5)),
		CapturePacing:      parseDurationOrDefault("CAPTURE_PACING", 300*time.Millisecond),
		RecognitionTimeout: parseDurationOrDefault("RECOGNITION_TIMEOUT", 10*time.Second),
		OCRLanguage:        getEnvOrDefault("OCR_LANGUAGE", "eng"),
		TessdataPrefix:     os.Getenv("TESSDATA_PREFIX"),

		CameraSource:      strings.ToLower(getEnvOrDefault("CAMERA_SOURCE", CameraSourceDevice)),
		CameraDeviceID:    int(parseIntOrDefault("CAMERA_DEVICE_ID", 0)),
		CameraSnapshotURL: os.Getenv("CAMERA_SNAPSHOT_URL"),
		CameraWatchDir:    os.Getenv("CAMERA_WATCH_DIR"),

		PreviewStorage:        strings.ToLower(getEnvOrDefault("PREVIEW_STORAGE", PreviewStorageLocal)),
		PreviewDir:            getEnvOrDefault("PREVIEW_DIR", "./previews"),
		AzureStorageAccount:   os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:       os.Getenv("AZURE_STORAGE_KEY"),
		AzureStorageContainer: getEnvOrDefault("AZURE_STORAGE_CONTAINER", "previews"),

		DatabaseDSN:   os.Getenv("DB_DSN"),
		DBAutoMigrate: parseBoolOrDefault("DB_AUTO_MIGRATE", true),
		JWTSecret:     os.Getenv("JWT_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the settings required by the selected backends.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.RecognitionTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, recognition=%s)",
			c.RequestTimeout, c.RecognitionTimeout)
	}
	if c.CaptureAttempts < 1 || c.CaptureAttempts > 20 {
		return fmt.Errorf("CAPTURE_ATTEMPTS must be between 1 and 20 (got %d)", c.CaptureAttempts)
	}
	if c.CapturePacing < 0 {
		return fmt.Errorf("CAPTURE_PACING must be >= 0 (got %s)", c.CapturePacing)
	}

	switch c.CameraSource {
	case CameraSourceDevice:
		if c.CameraDeviceID < 0 {
			return fmt.Errorf("CAMERA_DEVICE_ID must be >= 0 (got %d)", c.CameraDeviceID)
		}
	case CameraSourceSnapshot:
		if err := validation.NewURLValidator().ValidateURL(c.CameraSnapshotURL); err != nil {
			return fmt.Errorf("invalid CAMERA_SNAPSHOT_URL: %w", err)
		}
	case CameraSourceDirectory:
		if strings.TrimSpace(c.CameraWatchDir) == "" {
			return fmt.Errorf("CAMERA_WATCH_DIR is required for the directory camera source")
		}
	default:
		return fmt.Errorf("unsupported CAMERA_SOURCE: %q", c.CameraSource)
	}

	switch c.PreviewStorage {
	case PreviewStorageLocal:
		if strings.TrimSpace(c.PreviewDir) == "" {
			return fmt.Errorf("PREVIEW_DIR must not be empty")
		}
	case PreviewStorageAzure:
		if c.AzureStorageAccount == "" || c.AzureStorageKey == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required for azure preview storage")
		}
	default:
		return fmt.Errorf("unsupported PREVIEW_STORAGE: %q", c.PreviewStorage)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
