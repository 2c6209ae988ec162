package storage

import "errors"

var (
	// ErrCredentialNotFound is returned when a tenant has no credential for a provider
	ErrCredentialNotFound = errors.New("provider credential not found")

	// ErrAnalysisNotFound is returned when an analysis record is not found
	ErrAnalysisNotFound = errors.New("analysis record not found")

	// ErrBudgetNotFound is returned when no budget settings are stored for a scope
	ErrBudgetNotFound = errors.New("budget settings not found")
)
