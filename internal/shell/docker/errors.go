package docker

import (
	"errors"
	"fmt"

	"github.com/docker/docker/client"
)

var (
	ErrContainerNotFound   = errors.New("container not found")
	ErrContainerNotRunning = errors.New("container is not running")
	ErrConnectionFailed    = errors.New("docker daemon unreachable")
)

// RuntimeError is a failed call to the container runtime. Kind is one of the
// sentinels above when the failure was recognised; Err is what the SDK returned.
type RuntimeError struct {
	Op        string
	Container string
	Kind      error
	Err       error
}

func (e *RuntimeError) Error() string {
	target := "docker " + e.Op
	if e.Container != "" {
		target += " " + e.Container
	}
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", target, e.Kind, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", target, e.Kind)
	}
	return fmt.Sprintf("%s: %v", target, e.Err)
}

func (e *RuntimeError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// containerError classifies err from a per-container call.
func containerError(op, container string, err error) *RuntimeError {
	e := &RuntimeError{Op: op, Container: container, Err: err}
	switch {
	case client.IsErrNotFound(err):
		e.Kind, e.Err = ErrContainerNotFound, nil
	case client.IsErrConnectionFailed(err):
		e.Kind = ErrConnectionFailed
	}
	return e
}
