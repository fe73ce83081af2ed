package models

import "time"

// CaptureRequest starts an auto-capture run over HTTP.
type CaptureRequest struct {
	Attempts int  `json:"attempts,omitempty" binding:"omitempty,min=1,max=20"`
	PacingMs *int `json:"pacing_ms,omitempty" binding:"omitempty,min=0,max=10000"`
	AutoSave bool `json:"auto_save,omitempty"`
	Offline  bool `json:"offline,omitempty"`
}

// CaptureResult is the outcome of a capture run.
type CaptureResult struct {
	SessionID   string         `json:"session_id"`
	Status      string         `json:"status"`
	Value       string         `json:"value,omitempty"`
	RawText     string         `json:"raw_text,omitempty"`
	Score       float64        `json:"score"`
	Attempts    int            `json:"attempts"`
	BestAttempt int            `json:"best_attempt,omitempty"`
	Guidance    string         `json:"guidance,omitempty"`
	PreviewURL  string         `json:"preview_url,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Quality     []FrameQuality `json:"quality,omitempty"`
	Reading     *Reading       `json:"reading,omitempty"`
}

// FrameQuality summarises one captured frame.
type FrameQuality struct {
	Brightness  float64 `json:"brightness"`
	Contrast    float64 `json:"contrast"`
	Sharpness   float64 `json:"sharpness"`
	Dark        bool    `json:"dark,omitempty"`
	Overexposed bool    `json:"overexposed,omitempty"`
	Blurry      bool    `json:"blurry,omitempty"`
}

// CancelResponse reports whether a run was cancelled.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ReadingRequest hands a confirmed value to persistence.
type ReadingRequest struct {
	Value   string `json:"value" binding:"required"`
	Offline bool   `json:"offline,omitempty"`
}

// Reading is a persisted meter reading.
type Reading struct {
	ID        string    `json:"id"`
	Value     float64   `json:"value"`
	Offline   bool      `json:"offline"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadingList is the body of GET /readings.
type ReadingList struct {
	Readings []Reading `json:"readings"`
	Count    int       `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  string                 `json:"timestamp"`
	Version    string                 `json:"version"`
	Engine     string                 `json:"engine"`
	Camera     string                 `json:"camera"`
	Capturing  bool                   `json:"capturing"`
	Metrics    map[string]interface{} `json:"metrics,omitempty"`
	SSEClients int                    `json:"sse_clients"`
}
