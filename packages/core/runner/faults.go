package runner

import (
	"fmt"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
)

// unwind flattens err's cause tree depth first. Joined errors contribute
// their members but not themselves.
func unwind(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			out = append(out, e)
			walk(u.Unwrap())
		default:
			out = append(out, e)
		}
	}
	walk(err)
	return out
}

func typeName(err error) string {
	if p, ok := err.(*framework.PanicError); ok {
		return fmt.Sprintf("panic(%T)", p.Value)
	}
	return fmt.Sprintf("%T", err)
}

func stackOf(err error) string {
	if p, ok := err.(*framework.PanicError); ok {
		return p.Stack
	}
	return ""
}

// reportFault publishes one error event per cause of err
func (r *Runner) reportFault(assemblyID string, err error, agg *aggregator) {
	for _, cause := range unwind(err) {
		r.emit(&events.ErrorMessage{
			AssemblyID:    assemblyID,
			ExceptionType: typeName(cause),
			Message:       cause.Error(),
			StackTrace:    stackOf(cause),
		}, agg)
	}
}
