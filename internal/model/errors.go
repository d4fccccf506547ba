package model

import "errors"

var (
	// ErrInvalidPhase is returned for a phase outside first/second/third.
	ErrInvalidPhase = errors.New("invalid phase")
	// ErrInvalidArgument is returned for missing ids or out-of-range values.
	ErrInvalidArgument = errors.New("invalid argument")
)

// OpError tags an upstream failure with the operation that hit it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err, otherwise an *OpError.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
