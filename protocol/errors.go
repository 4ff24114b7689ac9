package protocol

import (
	"errors"
	"fmt"
)

// RoutineError is returned when a flash algorithm routine returns a nonzero
// result code.
type RoutineError struct {
	// Name is the routine that failed
	Name string

	// ErrorCode is the value the routine returned
	ErrorCode uint32
}

func (e *RoutineError) Error() string {
	return fmt.Sprintf("routine %s failed with error code 0x%X", e.Name, e.ErrorCode)
}

// IsRoutineError returns true if err is or wraps a RoutineError.
func IsRoutineError(err error) bool {
	var re *RoutineError
	return errors.As(err, &re)
}

// RegisterValueError is returned when a value does not fit a 32-bit register.
type RegisterValueError struct {
	Value uint64
}

func (e *RegisterValueError) Error() string {
	return fmt.Sprintf("value 0x%X does not fit a 32-bit register", e.Value)
}
