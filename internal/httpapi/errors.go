package httpapi

import (
	"errors"
	"net/http"

	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps a workflow failure kind to its HTTP status.
func statusFor(we *workflow.Error) int {
	switch we.Kind {
	case workflow.KindUnauthorized:
		return http.StatusForbidden
	case workflow.KindInvalidTransition,
		workflow.KindAlreadyAssigned,
		workflow.KindAlreadyCompleted,
		workflow.KindAlreadyTerminal,
		workflow.KindDuplicateLegalNotice:
		return http.StatusConflict
	case workflow.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	case workflow.KindConfiguration:
		if we.Action == workflow.ActionCreate {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": kind, "message": detail}. Wrapped
// lower-level causes are logged, not returned.
func writeError(c *gin.Context, err error) {
	var we *workflow.Error
	if !errors.As(err, &we) {
		logger.FromGin(c).Error("unclassified error", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal", "message": "internal error"})
		return
	}
	status := statusFor(we)
	msg := we.Msg
	if msg == "" {
		msg = string(we.Kind)
	}
	if we.Err != nil {
		logger.FromGin(c).Warn("request failed", "kind", string(we.Kind), "action", string(we.Action), "err", we.Err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": string(we.Kind), "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": string(workflow.KindInvalidArgument), "message": msg})
}
