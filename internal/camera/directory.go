package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
)

// DirectorySource treats a folder as a camera: the newest image written into
// it is the live frame. Phones or scanners that upload into a shared folder
// can feed the pipeline this way.
type DirectorySource struct {
	dir    string
	settle time.Duration
}

// NewDirectorySource watches dir. A file is loaded once it has not changed for
// settle.
func NewDirectorySource(dir string, settle time.Duration) *DirectorySource {
	if settle <= 0 {
		settle = 250 * time.Millisecond
	}
	return &DirectorySource{dir: dir, settle: settle}
}

// Name implements Source.
func (s *DirectorySource) Name() string { return "directory" }

// Acquire starts watching the directory and loads the newest existing image.
func (s *DirectorySource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, apperrors.NewCameraUnavailableError("watch directory not accessible", err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewCameraUnavailableError(fmt.Sprintf("%s is not a directory", s.dir), nil)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.NewCameraUnavailableError("failed to create directory watcher", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, apperrors.NewCameraUnavailableError("failed to watch directory", err)
	}

	st := &directoryStream{
		watcher: w,
		settle:  s.settle,
		done:    make(chan struct{}),
	}
	if path := newestImage(s.dir); path != "" {
		st.load(path)
	}
	go st.watch()
	return st, nil
}

type directoryStream struct {
	watcher *fsnotify.Watcher
	settle  time.Duration
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	latest image.Image
}

func (st *directoryStream) watch() {
	pending := map[string]time.Time{}
	interval := st.settle / 2
	if interval <= 0 {
		interval = st.settle
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.done:
			return
		case ev, ok := <-st.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isImageFile(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for path, t := range pending {
				if now.Sub(t) >= st.settle {
					delete(pending, path)
					st.load(path)
				}
			}
		case err, ok := <-st.watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("Directory camera watch error")
		}
	}
}

func (st *directoryStream) load(path string) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		logger.WithError(err).WithField("path", path).Warn("Skipping unreadable image")
		return
	}
	st.mu.Lock()
	st.latest = img
	st.mu.Unlock()
	logger.WithFields(logrus.Fields{
		"path":   path,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Directory camera frame updated")
}

func (st *directoryStream) Read() (image.Image, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	select {
	case <-st.done:
		return nil, errors.New("directory stream stopped")
	default:
	}
	if st.latest == nil {
		return nil, errors.New("no image in watch directory yet")
	}
	return st.latest, nil
}

func (st *directoryStream) Dimensions() (int, int) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.latest == nil {
		return 0, 0
	}
	b := st.latest.Bounds()
	return b.Dx(), b.Dy()
}

func (st *directoryStream) Stop() error {
	var err error
	st.once.Do(func() {
		close(st.done)
		err = st.watcher.Close()
	})
	return err
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff":
		return true
	}
	return false
}

func newestImage(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !isImageFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}
