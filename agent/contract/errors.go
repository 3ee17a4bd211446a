package contract

import "errors"

var (
	ErrModelInvoke      = errors.New("model invoke failed")
	ErrSchemaViolation  = errors.New("model response violates schema")
	ErrPromptMissing    = errors.New("required prompt is missing")
	ErrValidation       = errors.New("validation failed")
	ErrSearchFailed     = errors.New("web search failed")
	ErrFetchFailed      = errors.New("page fetch failed")
	ErrSendFailed       = errors.New("message send failed")
	ErrNotConfigured    = errors.New("collaborator is not configured")
	ErrInvalidSelection = errors.New("restaurant selection is invalid")
)
