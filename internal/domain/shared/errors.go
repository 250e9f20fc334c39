package shared

// DomainError is an error with a stable machine-readable code. The
// HTTP layer maps codes to status responses, so handlers never parse
// message text.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError builds a DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Sentinel errors shared across the domain packages.
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrValidation          = NewDomainError("VALIDATION_FAILED", "Input failed validation")
	ErrConnectivity        = NewDomainError("CONNECTIVITY", "Dependent store or peer unreachable")
	ErrProtectionViolation = NewDomainError("PROTECTION_VIOLATION", "Operation refused: record is not a test user")
	ErrSafetyLimitExceeded = NewDomainError("SAFETY_LIMIT_EXCEEDED", "Requested work exceeds configured safety limits")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)
