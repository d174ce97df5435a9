package app

import "fmt"

// DomainError is a service-level failure that maps directly onto an HTTP
// response: Status becomes the status code, Code and Message the JSON error
// envelope, and Details an optional machine-readable payload (for example
// the holder of a contested segment lock).
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
