package transport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/pkg/models"
)

const userIDKey = "user_id"

// jwtAuth requires a valid HMAC-signed bearer token and stores its subject.
func (h *handler) jwtAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := h.authenticate(c.GetHeader("Authorization"))
		if err != nil {
			fail(c, "authentication failed", err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// optionalAuth accepts anonymous requests but rejects a bad token.
func (h *handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		userID, err := h.authenticate(header)
		if err != nil {
			fail(c, "authentication failed", err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (h *handler) authenticate(header string) (string, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return "", apperrors.NewUnauthorizedError("missing or invalid Authorization header", nil)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.NewUnauthorizedError("invalid token", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", apperrors.NewUnauthorizedError("token has no subject", err)
	}
	return sub, nil
}

func (h *handler) saveReading(c *gin.Context) {
	var req models.ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	reading, err := h.deps.Readings.Save(c.Request.Context(), c.GetString(userIDKey), req.Value, req.Offline)
	if err != nil {
		fail(c, "failed to save reading", err)
		return
	}
	c.JSON(http.StatusCreated, reading)
}

func (h *handler) getReading(c *gin.Context) {
	reading, err := h.deps.Readings.Get(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		fail(c, "failed to load reading", err)
		return
	}
	c.JSON(http.StatusOK, reading)
}

func (h *handler) listReadings(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, "invalid limit", apperrors.NewValidationError("limit must be a non-negative integer", err))
			return
		}
		limit = n
	}

	readings, err := h.deps.Readings.List(c.Request.Context(), c.GetString(userIDKey), limit)
	if err != nil {
		fail(c, "failed to list readings", err)
		return
	}
	c.JSON(http.StatusOK, models.ReadingList{Readings: readings, Count: len(readings)})
}
