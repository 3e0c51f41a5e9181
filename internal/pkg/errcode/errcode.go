package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrMissingTenant
	ErrTranscription
	ErrAIUnavailable
	ErrUploadFailed
)
