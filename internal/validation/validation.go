// Package validation provides the declarative rule framework used by the
// import pipeline and API surfaces. Rules compose into chains; each rule
// pushes structured errors into a Result instead of raising, so callers
// decide whether to short-circuit.
package validation

import "fmt"

// Error is one failed rule, shaped for the 422 response surface.
type Error struct {
	Type    string         `json:"type"`
	Field   string         `json:"field"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result accumulates validation output across a chain of rules.
type Result struct {
	Errors   []Error `json:"errors,omitempty"`
	Warnings []Error `json:"warnings,omitempty"`
	Infos    []Error `json:"infos,omitempty"`
}

// HasErrors reports whether any rule failed at error severity.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// HasWarnings reports whether any rule produced a warning.
func (r *Result) HasWarnings() bool { return len(r.Warnings) > 0 }

// AddError appends an error entry.
func (r *Result) AddError(e Error) { r.Errors = append(r.Errors, e) }

// AddWarning appends a warning entry.
func (r *Result) AddWarning(e Error) { r.Warnings = append(r.Warnings, e) }

// Merge folds another result into this one.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Infos = append(r.Infos, other.Infos...)
}

// Rule validates a single field value. A nil return means the value
// passed; a non-nil return carries the structured failure.
type Rule func(field string, value any) *Error

// Chain composes multiple rules into a single rule. Rules are executed
// in order and the first failure stops the chain.
func Chain(rules ...Rule) Rule {
	return func(field string, value any) *Error {
		for _, r := range rules {
			if err := r(field, value); err != nil {
				return err
			}
		}
		return nil
	}
}

// Apply runs each named field's rule and accumulates failures into res.
// Returns true when every field passed.
func Apply(res *Result, fields map[string]struct {
	Value any
	Rule  Rule
}) bool {
	ok := true
	for field, fv := range fields {
		if err := fv.Rule(field, fv.Value); err != nil {
			res.AddError(*err)
			ok = false
		}
	}
	return ok
}
