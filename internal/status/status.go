// Package status defines the result envelope every PagerDuty and HipChat
// operation returns. Failures travel as values, not errors: callers branch
// on Success before touching any payload.
package status

import "fmt"

// Status is the uniform success/failure carrier. Content holds a
// human-readable success message or the failure detail (which may be a raw
// upstream error body).
type Status struct {
	Success bool
	Content string
}

// OK builds a successful Status with a printf-style message.
func OK(format string, args ...interface{}) Status {
	return Status{Success: true, Content: fmt.Sprintf(format, args...)}
}

// Fail builds a failed Status with a printf-style message.
func Fail(format string, args ...interface{}) Status {
	return Status{Success: false, Content: fmt.Sprintf(format, args...)}
}
