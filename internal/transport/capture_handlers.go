package transport

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/observer"
	"go-meter-reader/internal/service"
	"go-meter-reader/internal/storage"
	"go-meter-reader/pkg/models"
)

// captureTimeout bounds one HTTP-triggered run: every attempt may use the
// full recognition timeout plus pacing.
func (h *handler) captureTimeout(attempts int, pacing time.Duration) time.Duration {
	return time.Duration(attempts)*(h.cfg.RecognitionTimeout+pacing) + h.cfg.RequestTimeout
}

func (h *handler) startCapture(c *gin.Context) {
	var req models.CaptureRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
	}

	attempts := req.Attempts
	if attempts == 0 {
		attempts = h.cfg.CaptureAttempts
	}
	pacing := h.cfg.CapturePacing
	svcReq := service.CaptureRequest{
		Attempts: attempts,
		AutoSave: req.AutoSave,
		UserID:   c.GetString(userIDKey),
		Offline:  req.Offline,
	}
	if req.PacingMs != nil {
		pacing = time.Duration(*req.PacingMs) * time.Millisecond
	}
	svcReq.Pacing = &pacing

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.captureTimeout(attempts, pacing))
	defer cancel()

	result, err := h.deps.Capture.StartAutoCapture(ctx, svcReq)
	if err != nil {
		fail(c, "capture failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) captureOnce(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.captureTimeout(1, 0))
	defer cancel()

	result, err := h.deps.Capture.CaptureOnce(ctx)
	if err != nil {
		fail(c, "capture failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) cancelCapture(c *gin.Context) {
	if !h.deps.Capture.CancelCapture() {
		fail(c, "cancel failed", apperrors.NewNotFoundError("no capture is running", nil))
		return
	}
	c.JSON(http.StatusOK, models.CancelResponse{Cancelled: true})
}

func (h *handler) preview(c *gin.Context) {
	png, ok := h.deps.Capture.Preview()
	if !ok {
		fail(c, "preview unavailable", apperrors.NewNotFoundError("no preview captured yet", nil))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// storedPreview serves a preview saved by a matched run.
func (h *handler) storedPreview(c *gin.Context) {
	if h.deps.Previews == nil {
		fail(c, "preview unavailable", apperrors.NewNotFoundError("preview storage is not configured", nil))
		return
	}

	name := storage.PreviewName(c.Param("session_id"))
	png, err := h.deps.Previews.Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrPreviewNotFound) {
			fail(c, "preview unavailable", apperrors.NewNotFoundError("no preview stored for this session", err))
			return
		}
		fail(c, "preview unavailable", apperrors.NewInternalError("failed to load preview", err))
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handler) liveFrame(c *gin.Context) {
	img, err := h.deps.Capture.LiveFrame()
	if err != nil {
		fail(c, "live frame unavailable", err)
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		fail(c, "live frame unavailable", apperrors.NewInternalError("failed to encode frame", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// streamEvents forwards capture progress as Server-Sent Events until the
// client disconnects.
func (h *handler) streamEvents(c *gin.Context) {
	if h.deps.Events == nil {
		fail(c, "events unavailable", errors.New("event stream not configured"))
		return
	}

	sub := observer.NewChannelObserver("sse-"+uuid.NewString(), 64)
	h.deps.Events.Subscribe(sub)
	atomic.AddInt64(&h.sseClients, 1)
	defer func() {
		h.deps.Events.Unsubscribe(sub)
		sub.Close()
		atomic.AddInt64(&h.sseClients, -1)
		if dropped := sub.Dropped(); dropped > 0 {
			logger.WithField("dropped", dropped).Warn("SSE client fell behind, events were dropped")
		}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"time": time.Now().UTC()})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(event.EventType), event)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		}
	})
}
