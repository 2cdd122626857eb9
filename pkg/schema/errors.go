package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodePatternLoad         = "PATTERN_LOAD_ERROR"
	ErrCodeCapabilityNotFound  = "CAPABILITY_NOT_FOUND"
	ErrCodeCapabilityExecution = "CAPABILITY_EXECUTION_ERROR"
	ErrCodeConditionEvaluation = "CONDITION_EVALUATION_ERROR"
	ErrCodeTemplateResolution  = "TEMPLATE_RESOLUTION_WARNING"
	ErrCodeOutputExtraction    = "OUTPUT_EXTRACTION_WARNING"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeStore               = "STORE_ERROR"
)

// PatternError is the structured error type for all engine operations.
type PatternError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	StepIndex *int           `json:"step_index,omitempty"`
	Cause     error          `json:"-"`
}

func (e *PatternError) Error() string {
	if e.StepIndex != nil {
		return fmt.Sprintf("[%s] step %d: %s", e.Code, *e.StepIndex, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PatternError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PatternError.
func NewError(code, message string) *PatternError {
	return &PatternError{Code: code, Message: message}
}

// NewErrorf creates a new PatternError with a formatted message.
func NewErrorf(code, format string, args ...any) *PatternError {
	return &PatternError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches the index of the step the error originated from.
func (e *PatternError) WithStep(index int) *PatternError {
	e.StepIndex = &index
	return e
}

// WithCause attaches an underlying cause.
func (e *PatternError) WithCause(err error) *PatternError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *PatternError) WithDetails(details map[string]any) *PatternError {
	e.Details = details
	return e
}
