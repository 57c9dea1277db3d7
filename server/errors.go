package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lvillar/docfill"
	"go.uber.org/zap"
)

// fail writes the error envelope for err and aborts the request.
func (s *Server) fail(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		s.log.Debug("request rejected",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, docfill.ErrValidation):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, docfill.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case docfill.Retryable(err):
		msg := "request timed out"
		if errors.Is(err, docfill.ErrRenderTimeout) {
			msg = "rendering timed out"
		}
		return http.StatusServiceUnavailable, gin.H{
			"error":     msg,
			"details":   err.Error(),
			"retryable": true,
		}
	case errors.Is(err, docfill.ErrRender):
		return http.StatusInternalServerError, gin.H{
			"error":   "rendering failed",
			"details": err.Error(),
		}
	case errors.Is(err, docfill.ErrInvalidTemplate):
		return http.StatusInternalServerError, gin.H{
			"error":   "template could not be read",
			"details": err.Error(),
		}
	default:
		return http.StatusInternalServerError, gin.H{
			"error":   "internal error",
			"details": err.Error(),
		}
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
