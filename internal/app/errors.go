package app

import "fmt"

// DomainError is a failure with a known HTTP status and envelope code.
type DomainError struct {
	Status  int
	Code    int
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func domainError(status, code int, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
