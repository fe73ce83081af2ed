package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "go-meter-reader/internal/errors"
)

func TestDirectorySourceMissingDir(t *testing.T) {
	src := NewDirectorySource(filepath.Join(t.TempDir(), "missing"), 0)
	_, err := src.Acquire(context.Background(), DefaultConstraints())
	if !apperrors.IsType(err, apperrors.ErrorTypeCameraUnavailable) {
		t.Errorf("expected camera_unavailable, got %v", err)
	}
}

func TestDirectorySourceLoadsExistingImage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meter.png"), pngBytes(t, 40, 30), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	stream, err := NewDirectorySource(dir, 20*time.Millisecond).Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer stream.Stop()

	if w, h := stream.Dimensions(); w != 40 || h != 30 {
		t.Errorf("Dimensions() = %dx%d, want 40x30", w, h)
	}
	if _, err := stream.Read(); err != nil {
		t.Errorf("Read() error = %v", err)
	}
}

func TestDirectorySourcePicksUpNewImages(t *testing.T) {
	dir := t.TempDir()
	stream, err := NewDirectorySource(dir, 20*time.Millisecond).Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer stream.Stop()

	if _, err := stream.Read(); err == nil {
		t.Fatal("expected an error before any image arrives")
	}
	if w, h := stream.Dimensions(); w != 0 || h != 0 {
		t.Errorf("Dimensions() = %dx%d before first image", w, h)
	}

	if err := os.WriteFile(filepath.Join(dir, "upload.png"), pngBytes(t, 24, 12), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if w, _ := stream.Dimensions(); w == 24 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if w, h := stream.Dimensions(); w != 24 || h != 12 {
		t.Fatalf("new image not picked up, Dimensions() = %dx%d", w, h)
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if _, err := stream.Read(); err == nil {
		t.Error("Read() after Stop should fail")
	}
}
