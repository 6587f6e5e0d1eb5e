package tool

import "fmt"

// NotFoundError reports a lookup for an unregistered tool.
type NotFoundError struct {
	ToolID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool: %q not registered", e.ToolID)
}

// PermissionError reports an execution blocked by missing permissions.
type PermissionError struct {
	ToolID  string
	Missing []string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("tool: %q requires permissions not granted: %v", e.ToolID, e.Missing)
}

// TimeoutError reports an execution that exceeded its deadline.
type TimeoutError struct {
	ToolID  string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool: %q timed out after %s", e.ToolID, e.Timeout)
}

// ValidationError reports rejected input parameters.
type ValidationError struct {
	ToolID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool: %q rejected input: %s", e.ToolID, e.Reason)
}

// SecurityError reports a load or execution blocked on security grounds.
type SecurityError struct {
	ToolID string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("tool: %q blocked: %s", e.ToolID, e.Reason)
}

// DependencyError reports an unsatisfiable manifest dependency.
type DependencyError struct {
	ToolID string
	Reason string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("tool: %q dependency unsatisfied: %s", e.ToolID, e.Reason)
}
