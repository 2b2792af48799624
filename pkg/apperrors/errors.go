package apperrors

// Error is an application-level error with a stable code that handlers
// translate into an HTTP status and clients can branch on.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrNotFound            = New("NOT_FOUND", "resource not found")
	ErrConflict            = New("CONFLICT", "resource conflicts with existing data")
	ErrConcurrencyConflict = New("CONCURRENCY_CONFLICT", "resource was modified by another process")
	ErrSelfDelete          = New("SELF_DELETE", "users cannot delete their own account")
	ErrForbidden           = New("FORBIDDEN", "access to this resource is forbidden")
	ErrInsufficientStock   = New("INSUFFICIENT_STOCK", "insufficient stock available")
)
