package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "CAPTURE_ATTEMPTS", "CAPTURE_PACING", "RECOGNITION_TIMEOUT", "CAMERA_SOURCE", "PREVIEW_STORAGE", "JWT_SECRET"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.CaptureAttempts != 5 {
		t.Errorf("CaptureAttempts = %d, want 5", cfg.CaptureAttempts)
	}
	if cfg.CapturePacing != 300*time.Millisecond {
		t.Errorf("CapturePacing = %s, want 300ms", cfg.CapturePacing)
	}
	if cfg.RecognitionTimeout != 10*time.Second {
		t.Errorf("RecognitionTimeout = %s", cfg.RecognitionTimeout)
	}
	if cfg.CameraSource != CameraSourceDevice || cfg.PreviewStorage != PreviewStorageLocal {
		t.Errorf("backends = %s/%s", cfg.CameraSource, cfg.PreviewStorage)
	}
	if cfg.ReadingsEnabled() {
		t.Error("readings should be disabled without JWT_SECRET")
	}
	if cfg.ServerAddress() != "0.0.0.0:8080" {
		t.Errorf("ServerAddress() = %q", cfg.ServerAddress())
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CAPTURE_ATTEMPTS", "3")
	t.Setenv("CAPTURE_PACING", "0s")
	t.Setenv("CAMERA_SOURCE", "Snapshot")
	t.Setenv("CAMERA_SNAPSHOT_URL", "http://cam.local:8081/snapshot.jpg")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.CaptureAttempts != 3 || cfg.CapturePacing != 0 {
		t.Errorf("attempts/pacing = %d/%s", cfg.CaptureAttempts, cfg.CapturePacing)
	}
	if cfg.CameraSource != CameraSourceSnapshot {
		t.Errorf("CameraSource = %q", cfg.CameraSource)
	}
	if !cfg.ReadingsEnabled() || cfg.DBAutoMigrate {
		t.Errorf("readings=%v automigrate=%v", cfg.ReadingsEnabled(), cfg.DBAutoMigrate)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:               "8080",
			RequestTimeout:     time.Second,
			MaxRequestBodySize: 1024,
			CaptureAttempts:    5,
			CapturePacing:      300 * time.Millisecond,
			RecognitionTimeout: time.Second,
			CameraSource:       CameraSourceDevice,
			PreviewStorage:     PreviewStorageLocal,
			PreviewDir:         "./previews",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Port = "http" }, true},
		{"port out of range", func(c *Config) { c.Port = "70000" }, true},
		{"zero attempts", func(c *Config) { c.CaptureAttempts = 0 }, true},
		{"too many attempts", func(c *Config) { c.CaptureAttempts = 21 }, true},
		{"negative pacing", func(c *Config) { c.CapturePacing = -time.Second }, true},
		{"zero recognition timeout", func(c *Config) { c.RecognitionTimeout = 0 }, true},
		{"snapshot without url", func(c *Config) { c.CameraSource = CameraSourceSnapshot }, true},
		{"snapshot ftp url", func(c *Config) {
			c.CameraSource = CameraSourceSnapshot
			c.CameraSnapshotURL = "ftp://cam/snap.jpg"
		}, true},
		{"directory without dir", func(c *Config) { c.CameraSource = CameraSourceDirectory }, true},
		{"unknown camera", func(c *Config) { c.CameraSource = "usb" }, true},
		{"azure without credentials", func(c *Config) { c.PreviewStorage = PreviewStorageAzure }, true},
		{"azure with credentials", func(c *Config) {
			c.PreviewStorage = PreviewStorageAzure
			c.AzureStorageAccount = "acct"
			c.AzureStorageKey = "a2V5"
		}, false},
		{"unknown storage", func(c *Config) { c.PreviewStorage = "s3" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
