package collab

import (
	"errors"

	"deltaServer/backend/internal/ot/delta"
)

var (
	ErrRevisionConflict      = errors.New("REVISION_CONFLICT")
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
	ErrDocumentNotFound      = errors.New("DOCUMENT_NOT_FOUND")
	ErrNoSnapshotStore       = errors.New("snapshot store not initialized")
)

// ErrorCode 把错误映射成返回给客户端的错误码，未知错误不暴露细节
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRevisionConflict):
		return "REVISION_CONFLICT"
	case errors.Is(err, ErrDuplicateOrOutOfOrder):
		return "DUPLICATE_OR_OUT_OF_ORDER"
	case errors.Is(err, ErrDocumentNotFound):
		return "DOCUMENT_NOT_FOUND"
	case errors.Is(err, delta.ErrInvalidOperation):
		return "INVALID_OPERATION"
	case errors.Is(err, ErrSemaphoreTimeout):
		return "BUSY"
	default:
		return "INTERNAL"
	}
}
