package models

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

// Error constructors.
var (
	ErrDecode = func(msg string) *AppError {
		return &AppError{Code: "DECODE_ERROR", Message: msg, Status: 400}
	}
	ErrUnsupportedFormat = func(msg string) *AppError {
		return &AppError{Code: "UNSUPPORTED_FORMAT", Message: msg, Status: 400}
	}
	ErrValidation = func(field, msg string) *AppError {
		return &AppError{Code: "VALIDATION_ERROR", Message: msg, Field: field, Status: 400}
	}
	ErrNotFound = func(msg string) *AppError {
		return &AppError{Code: "NOT_FOUND", Message: msg, Status: 404}
	}
	ErrIndex = func(msg string) *AppError {
		return &AppError{Code: "INDEX_ERROR", Message: msg, Status: 400}
	}
	ErrIO = func(msg string) *AppError {
		return &AppError{Code: "IO_ERROR", Message: msg, Status: 500}
	}
	ErrBadRequest = func(msg string) *AppError {
		return &AppError{Code: "BAD_REQUEST", Message: msg, Status: 400}
	}
	ErrInternal = func(msg string) *AppError {
		return &AppError{Code: "INTERNAL", Message: msg, Status: 500}
	}
)
