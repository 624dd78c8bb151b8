package workflows

// workflowNotFoundError indicates an id with no stored workflow.
type workflowNotFoundError struct{ id string }

func (e workflowNotFoundError) Error() string { return "workflow not found: " + e.id }

// ErrWorkflowNotFound constructs an error for a missing workflow id.
func ErrWorkflowNotFound(id string) error { return workflowNotFoundError{id: id} }

// IsWorkflowNotFound reports whether err indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	_, ok := err.(workflowNotFoundError)
	return ok
}
