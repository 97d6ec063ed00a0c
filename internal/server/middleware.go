package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"

	ctxKeyUserID = "server.user_id"
)

// requestID tags every request with an ID for log correlation. An inbound
// X-Request-ID is honored so traces can span the fronting proxy.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

// accessLog writes one structured line per request after it completes.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"request_id", common.RequestIDFromContext(c.Request.Context()),
		)
	}
}

// requireUser resolves the acting user from the X-User-ID header set by the
// fronting proxy. Requests without a well-formed user id are rejected.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is not a valid user id"})
			return
		}
		c.Set(ctxKeyUserID, userID)
		c.Request = c.Request.WithContext(common.WithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

func currentUser(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}
