package camera

import (
	"context"
	"crypto/tls"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
)

const snapshotAttempts = 3

// SnapshotSource polls an IP camera's still-image endpoint. Each Read fetches
// a fresh JPEG or PNG.
type SnapshotSource struct {
	url        string
	client     *http.Client
	retryDelay time.Duration
}

// SnapshotOption configures a SnapshotSource.
type SnapshotOption func(*SnapshotSource)

// WithRetryDelay sets the base back-off between attempts; attempt n waits n*d.
func WithRetryDelay(d time.Duration) SnapshotOption {
	return func(s *SnapshotSource) { s.retryDelay = d }
}

// WithInsecureTLS accepts self-signed camera certificates.
func WithInsecureTLS() SnapshotOption {
	return func(s *SnapshotSource) {
		if t, ok := s.client.Transport.(*http.Transport); ok {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) SnapshotOption {
	return func(s *SnapshotSource) { s.client = c }
}

// NewSnapshotSource creates a source for the given snapshot URL.
func NewSnapshotSource(snapshotURL string, opts ...SnapshotOption) *SnapshotSource {
	transport := &http.Transport{
		// One camera, sequential reads.
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:    5 * time.Second,
		ResponseHeaderTimeout:  5 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	s := &SnapshotSource{
		url: snapshotURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (s *SnapshotSource) Name() string { return "snapshot" }

// Acquire fetches one snapshot to prove the camera is reachable.
func (s *SnapshotSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	img, err := s.fetch(ctx)
	if err != nil {
		return nil, apperrors.NewCameraUnavailableError("snapshot camera unreachable", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	st := &snapshotStream{src: s, ctx: streamCtx, cancel: cancel}
	st.remember(img)
	return st, nil
}

// fetch downloads and decodes one snapshot. 4xx responses are final, 5xx and
// transport errors are retried with a linear back-off.
func (s *SnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	var lastErr error

	for attempt := 0; attempt < snapshotAttempts; attempt++ {
		img, retry, err := s.fetchOnce(ctx)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !retry || attempt == snapshotAttempts-1 {
			break
		}

		logger.WithError(err).WithFields(logrus.Fields{
			"url":     s.url,
			"attempt": attempt + 1,
		}).Debug("Retrying camera snapshot")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * s.retryDelay):
		}
	}
	return nil, fmt.Errorf("failed to fetch snapshot after %d attempts: %w", snapshotAttempts, lastErr)
}

func (s *SnapshotSource) fetchOnce(ctx context.Context) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, */*")
	req.Header.Set("User-Agent", "Go-Meter-Reader/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return img, false, nil
}

type snapshotStream struct {
	src    *SnapshotSource
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	width, height int
}

func (st *snapshotStream) remember(img image.Image) {
	st.mu.Lock()
	defer st.mu.Unlock()
	b := img.Bounds()
	st.width, st.height = b.Dx(), b.Dy()
}

func (st *snapshotStream) Read() (image.Image, error) {
	if err := st.ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot stream stopped: %w", err)
	}
	img, err := st.src.fetch(st.ctx)
	if err != nil {
		return nil, err
	}
	st.remember(img)
	return img, nil
}

func (st *snapshotStream) Dimensions() (int, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.width, st.height
}

func (st *snapshotStream) Stop() error {
	st.cancel()
	return nil
}
