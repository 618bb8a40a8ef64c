package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"deltaServer/backend/internal/collab"
	"deltaServer/backend/internal/ot/delta"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, collab.ErrRevisionConflict), errors.Is(err, collab.ErrDuplicateOrOutOfOrder):
		return http.StatusConflict
	case errors.Is(err, collab.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, delta.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, collab.ErrSemaphoreTimeout), errors.Is(err, collab.ErrNoSnapshotStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"code": collab.ErrorCode(err)}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	} else {
		body["message"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// 请求体解析失败：delta 本身不合法归为 INVALID_OPERATION，超长为 BODY_TOO_LARGE，其余为 BAD_REQUEST
func abortBadRequest(c *gin.Context, err error) {
	if errors.Is(err, delta.ErrInvalidOperation) {
		abortWithError(c, err)
		return
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"code": "BODY_TOO_LARGE", "message": err.Error()})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
}
