package errors

// Error codes exposed at the application boundary (CLI, HTTP).
const (
	CodeInvalidDesign        = "INVALID_DESIGN"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeCancelled            = "CANCELLED"
	CodeInternal             = "INTERNAL"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// New creates an AppError with a code and message.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}
