package build

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingName    = errors.New("build has no name")
	ErrMissingSource  = errors.New("build has no source")
	ErrCreateBuildDir = errors.New("failed to create build directory")
)

// InvalidLibraryTypeError is returned when an environment variable names a
// library type other than static or shared.
type InvalidLibraryTypeError struct {
	Variable string
	Value    string
}

func (e *InvalidLibraryTypeError) Error() string {
	return fmt.Sprintf("invalid library type %q in %s (expected static or shared)", e.Value, e.Variable)
}

// StepError describes a failed source setup or build step. Stdout and Stderr
// hold whatever the failing tool printed.
type StepError struct {
	Detail string
	Stdout string
	Stderr string
	Err    error
}

func NewStepError(format string, a ...any) *StepError {
	return &StepError{Detail: fmt.Sprintf(format, a...)}
}

// IOStepError wraps a filesystem error. The error text goes into the stderr
// section so it shows up in the report.
func IOStepError(detail string, err error) *StepError {
	return &StepError{Detail: detail, Stderr: "IOError: " + err.Error(), Err: err}
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *StepError) Unwrap() error { return e.Err }

// asStepError converts any error returned by a step into a *StepError.
func asStepError(err error) *StepError {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{Detail: err.Error(), Err: err}
}

// Error is returned by Build.Execute. Partial holds what the steps before
// the failing one produced.
type Error struct {
	Step    string
	Err     *StepError
	Partial *Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("build step %q errored: %s", e.Step, e.Err.Error())
}

func (e *Error) Unwrap() error { return e.Err }

// PrettyFormat renders the failure with the captured tool output.
func (e *Error) PrettyFormat() string {
	var sb strings.Builder
	sb.Grow(len(e.Err.Stdout) + len(e.Err.Stderr) + len(e.Step) + len(e.Err.Detail) + 200)

	fmt.Fprintf(&sb, "Build step %q errored: %s\n", e.Step, e.Err.Error())
	if e.Err.Stdout != "" {
		sb.WriteString("----------------- Stdout -----------------\n")
		writeSection(&sb, e.Err.Stdout)
	}
	if e.Err.Stderr != "" {
		sb.WriteString("----------------- Stderr -----------------\n")
		writeSection(&sb, e.Err.Stderr)
	}
	return sb.String()
}

func writeSection(sb *strings.Builder, s string) {
	sb.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		sb.WriteByte('\n')
	}
}
