// internal/common/errors/problem.go
package errors

import "time"

// ProblemResponse is the single structured error shape returned for every
// failed request, uniform across all contracts and all error kinds.
type ProblemResponse struct {
	Code      ErrorCode    `json:"code"`
	Message   string       `json:"message"`
	Details   string       `json:"details,omitempty"`
	Issues    []FieldIssue `json:"issues,omitempty"`
	Timestamp string       `json:"timestamp"`
}

// Normalize ensures we always have a RuntimeError.
func Normalize(err error) *RuntimeError {
	if rtErr, ok := err.(*RuntimeError); ok {
		return rtErr
	}
	return NewInternalError(err)
}

// ToProblem converts any error into the uniform problem-response shape.
func ToProblem(err error) *ProblemResponse {
	rtErr := Normalize(err)
	return &ProblemResponse{
		Code:      rtErr.Code,
		Message:   rtErr.Message,
		Details:   rtErr.Details,
		Issues:    rtErr.Issues,
		Timestamp: rtErr.Timestamp.Format(time.RFC3339),
	}
}
