package patient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when no patient matches the requested id.
var ErrNotFound = errors.New("patient not found")

// ValidationError carries one message per invalid field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field. The first message for a field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// Merge copies the messages of other into e.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msg := range other.Fields {
		e.Add(field, msg)
	}
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// ConflictError is returned when a write would duplicate an existing ipp.
// Conditional is set when the request carried If-None-Exist.
type ConflictError struct {
	IPP         string
	Conditional bool
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a patient with ipp %q already exists", e.IPP)
}
