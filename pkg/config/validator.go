package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation error with context and a
// suggestion, the same shape the teacher used for its YAML config errors.
// Only the config loader uses it; internal/api reports body validation
// failures (422s) with its own fieldError type.
type ValidationError struct {
	Field    string // Field path (e.g., "iterations")
	Value    string // The actual value provided (if any)
	Message  string // Error description
	Expected string // Expected format/type
	Hint     string // Helpful suggestion
}

// ValidationResult holds all validation errors accumulated while checking
// one config.
type ValidationResult struct {
	Errors []ValidationError
}

// Add adds a new validation error.
func (v *ValidationResult) Add(err ValidationError) {
	v.Errors = append(v.Errors, err)
}

// HasErrors returns true if there are validation errors.
func (v *ValidationResult) HasErrors() bool {
	return len(v.Errors) > 0
}

// FormatErrors formats all errors into a user-friendly string.
func (v *ValidationResult) FormatErrors() string {
	if !v.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration errors:\n")

	for i, err := range v.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %s\n", i+1, err.Field))
		if err.Value != "" {
			sb.WriteString(fmt.Sprintf("     value: %q\n", truncate(err.Value, 50)))
		}
		sb.WriteString(fmt.Sprintf("     error: %s\n", err.Message))
		if err.Expected != "" {
			sb.WriteString(fmt.Sprintf("     expected: %s\n", err.Expected))
		}
		if err.Hint != "" {
			sb.WriteString(fmt.Sprintf("     hint: %s\n", err.Hint))
		}
	}

	return sb.String()
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
