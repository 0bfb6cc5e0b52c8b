package conversation

import "errors"

// DependencyError marks a failed store or model call that aborted a request.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return "conversation: " + e.Op + ": " + e.Err.Error()
}

func (e *DependencyError) Unwrap() error { return e.Err }

func dependencyErr(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}

// IsDependencyError reports whether err came from a failed collaborator.
func IsDependencyError(err error) bool {
	var dep *DependencyError
	return errors.As(err, &dep)
}
