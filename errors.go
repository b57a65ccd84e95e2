package params

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotInitialized indicates an operation that needs a temporal window was
// called before Initialize.
var ErrNotInitialized = errors.New("params: temporal window not initialized")

// ErrAlreadyInitialized indicates Initialize was called twice on one engine.
var ErrAlreadyInitialized = errors.New("params: temporal window already initialized")

// SchemaError reports a malformed schema or defaults document. It is fatal at
// load time; an engine constructed without error never produces one.
type SchemaError struct {
	Section string
	Err     error
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Section == "" {
		return fmt.Sprintf("params: schema: %v", e.Err)
	}
	return fmt.Sprintf("params: schema %s: %v", e.Section, e.Err)
}

func (e *SchemaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func schemaErrorf(section, format string, args ...any) error {
	return &SchemaError{Section: section, Err: fmt.Errorf(format, args...)}
}

// ValidationReport accumulates rule violations and advisories keyed by
// parameter name (or pseudo-name, e.g. "set_year" for window bounds).
type ValidationReport struct {
	Errors   map[string][]string
	Warnings map[string][]string
}

func newValidationReport() *ValidationReport {
	return &ValidationReport{
		Errors:   map[string][]string{},
		Warnings: map[string][]string{},
	}
}

func (r *ValidationReport) addError(param, msg string) {
	r.Errors[param] = append(r.Errors[param], msg)
}

func (r *ValidationReport) addWarning(param, msg string) {
	r.Warnings[param] = append(r.Warnings[param], msg)
}

// HasErrors reports whether any error-level violation was recorded.
func (r *ValidationReport) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// HasWarnings reports whether any advisory was recorded.
func (r *ValidationReport) HasWarnings() bool {
	return r != nil && len(r.Warnings) > 0
}

func (r *ValidationReport) messages(entries map[string][]string) []string {
	if len(entries) == 0 {
		return nil
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(entries))
	for _, name := range names {
		for _, msg := range entries[name] {
			out = append(out, fmt.Sprintf("%s: %s", name, msg))
		}
	}
	return out
}

// ErrorMessages returns every error message prefixed by its parameter name,
// sorted by parameter.
func (r *ValidationReport) ErrorMessages() []string {
	if r == nil {
		return nil
	}
	return r.messages(r.Errors)
}

// WarningMessages returns every warning message prefixed by its parameter
// name, sorted by parameter.
func (r *ValidationReport) WarningMessages() []string {
	if r == nil {
		return nil
	}
	return r.messages(r.Warnings)
}

// ValidationError reports that a revision, extension request, or period change
// violates declared rules. It carries the full accumulated report so callers
// can inspect every violation, not just the first.
type ValidationError struct {
	Report *ValidationReport
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msgs := e.Report.ErrorMessages()
	if len(msgs) == 0 {
		return "params: validation failed"
	}
	return fmt.Sprintf("params: validation failed: %s", strings.Join(msgs, "; "))
}

func newValidationError(report *ValidationReport) error {
	return &ValidationError{Report: report}
}

func validationErrorf(param, format string, args ...any) error {
	report := newValidationReport()
	report.addError(param, fmt.Sprintf(format, args...))
	return newValidationError(report)
}

// ExtensionError reports an extrapolation that cannot proceed, either because
// a requested period precedes every known record or because the historical
// records have inconsistent shape. The call leaves state untouched.
type ExtensionError struct {
	Param  string
	Period int
	Err    error
}

func (e *ExtensionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("params: extend %s at %d: %v", e.Param, e.Period, e.Err)
}

func (e *ExtensionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func extensionErrorf(param string, period int, format string, args ...any) error {
	return &ExtensionError{Param: param, Period: period, Err: fmt.Errorf(format, args...)}
}

// ArgumentError reports a malformed call argument. It signals a programming
// error rather than a data error and is never suppressed by the raise/report
// policy flags.
type ArgumentError struct {
	Arg string
	Err error
}

func (e *ArgumentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Arg == "" {
		return fmt.Sprintf("params: %v", e.Err)
	}
	return fmt.Sprintf("params: argument %s: %v", e.Arg, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func argumentErrorf(arg, format string, args ...any) error {
	return &ArgumentError{Arg: arg, Err: fmt.Errorf(format, args...)}
}
