package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so wrapped copies of a sentinel compare equal to it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrTreatmentNotFound = &AppError{Code: "MODEL_001", Message: "treatment not found"}
	ErrAlreadyApplied    = &AppError{Code: "MODEL_002", Message: "treatment already applied"}

	ErrCatalogInvalid  = &AppError{Code: "CATALOG_001", Message: "invalid treatment catalog"}
	ErrCatalogNotFound = &AppError{Code: "CATALOG_002", Message: "treatment catalog not found"}

	ErrCredentialMissing   = &AppError{Code: "LLM_001", Message: "missing API credential"}
	ErrProviderUnavailable = &AppError{Code: "LLM_002", Message: "LLM provider unavailable"}
	ErrRateLimited         = &AppError{Code: "LLM_003", Message: "rate limit exceeded"}
	ErrEmptyResponse       = &AppError{Code: "LLM_004", Message: "No response from Gemini AI"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithCause returns a copy of a sentinel carrying cause.
func WithCause(sentinel *AppError, cause error) *AppError {
	return &AppError{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Cause:   cause,
	}
}
