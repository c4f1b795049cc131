package framework

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// AssertionError is a test failure caused by a failed check
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return e.Message }

// SkipError is returned by a body that skips itself at runtime
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

// PanicError is a recovered panic from a test body
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Fail returns an assertion failure
func Fail(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// Skip returns a runtime skip
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// T is handed to a running body
type T struct {
	Row Row

	mu       sync.Mutex
	output   strings.Builder
	warnings []string
	onOutput func(string)
}

// NewT creates a T. onOutput, when set, receives every line as it is logged.
func NewT(row Row, onOutput func(string)) *T {
	return &T{Row: row, onOutput: onOutput}
}

// Log records a line of output
func (t *T) Log(args ...any) {
	t.write(fmt.Sprintln(args...))
}

// Logf records formatted output
func (t *T) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	t.write(line)
}

func (t *T) write(line string) {
	t.mu.Lock()
	t.output.WriteString(line)
	cb := t.onOutput
	t.mu.Unlock()

	if cb != nil {
		cb(line)
	}
}

// Warn attaches a warning to the result
func (t *T) Warn(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = append(t.warnings, msg)
}

// Output returns everything logged so far
func (t *T) Output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output.String()
}

// Warnings returns the recorded warnings
func (t *T) Warnings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.warnings...)
}

// Invoke runs body, converting a panic into a *PanicError
func Invoke(ctx context.Context, body Body, t *T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	if body == nil {
		return errors.New("test case has no body")
	}
	return body(ctx, t)
}

type cultureKey struct{}

// WithCulture returns a context carrying the culture tests run under
func WithCulture(ctx context.Context, culture string) context.Context {
	return context.WithValue(ctx, cultureKey{}, culture)
}

// Culture returns the culture set by WithCulture; ok is false for the default culture
func Culture(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(cultureKey{}).(string)
	return c, ok
}
