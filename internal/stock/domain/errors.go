package domain

import "strings"

const ValidationCode = "domain_exception"

// ValidationError carries every rule a creation input broke.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ", ")
}

func (e *ValidationError) Code() string { return ValidationCode }
