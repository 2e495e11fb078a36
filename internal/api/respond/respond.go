// Package respond holds the JSON error shapes shared by every handler.
package respond

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Details reports whether internal error messages may be shown to clients.
// main switches gin to release mode in production.
func Details() bool {
	return gin.Mode() != gin.ReleaseMode
}

func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// Internal logs err and answers 500. The cause is attached as "details"
// outside production.
func Internal(c *gin.Context, msg string, err error, attrs ...any) {
	Failure(c, http.StatusInternalServerError, msg, err, attrs...)
}

// Failure is Internal with a caller-chosen status, used for upstream errors.
func Failure(c *gin.Context, status int, msg string, err error, attrs ...any) {
	_ = c.Error(err)
	slog.ErrorContext(c.Request.Context(), msg, append(attrs, "error", err)...)

	body := gin.H{"error": msg}
	if Details() && err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}
