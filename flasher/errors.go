package flasher

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-flashalgo/target"
)

// ErrChipEraseNotSupported is returned when neither the target nor the flash
// algorithm can erase the whole chip.
var ErrChipEraseNotSupported = errors.New("chip erase is not supported by the target or the flash algorithm")

// TransportError wraps a failure of the underlying core access.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// VerificationError indicates that the flash contents do not match the data
// that was written.
type VerificationError struct {
	Address uint64
	Reason  string
}

func (e *VerificationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("verification failed at 0x%08X", e.Address)
	}
	return fmt.Sprintf("verification failed at 0x%08X: %s", e.Address, e.Reason)
}

// IsVerificationError returns true if err is or wraps a VerificationError.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}

// AlgorithmNotLoadedError indicates that the algorithm read back from target
// RAM differs from the image that was written.
type AlgorithmNotLoadedError struct {
	Address  uint64
	Expected uint32
	Actual   uint32
}

func (e *AlgorithmNotLoadedError) Error() string {
	return fmt.Sprintf("flash algorithm not loaded: mismatch at 0x%08X: expected 0x%08X, read back 0x%08X",
		e.Address, e.Expected, e.Actual)
}

// StackOverflowError indicates that a routine overwrote the guard byte at the
// bottom of the algorithm stack.
type StackOverflowError struct {
	Operation string
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("stack overflow detected during %s", e.Operation)
}

// TimeoutError indicates that a routine did not return within its timeout.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("routine %s timed out after %s", e.Operation, e.Timeout)
}

// UnexpectedCoreStatusError indicates the core entered a state a routine
// cannot recover from.
type UnexpectedCoreStatusError struct {
	Status target.Status
}

func (e *UnexpectedCoreStatusError) Error() string {
	return fmt.Sprintf("unexpected core status: %s", e.Status)
}

// InitError wraps a failure to call the Init routine.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("flash algorithm init failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// UninitError wraps a failure to call the UnInit routine.
type UninitError struct {
	Err error
}

func (e *UninitError) Error() string {
	return fmt.Sprintf("flash algorithm uninit failed: %v", e.Err)
}

func (e *UninitError) Unwrap() error {
	return e.Err
}

// EraseError indicates that erasing a sector failed.
type EraseError struct {
	SectorAddress uint64
	Err           error
}

func (e *EraseError) Error() string {
	return fmt.Sprintf("failed to erase sector at 0x%08X: %v", e.SectorAddress, e.Err)
}

func (e *EraseError) Unwrap() error {
	return e.Err
}

// ChipEraseError indicates that erasing the whole chip failed.
type ChipEraseError struct {
	Err error
}

func (e *ChipEraseError) Error() string {
	return fmt.Sprintf("chip erase failed: %v", e.Err)
}

func (e *ChipEraseError) Unwrap() error {
	return e.Err
}

// NotErasedError is reported by a blank check that found programmed bytes.
type NotErasedError struct {
	Address uint64
	Value   uint8
}

func (e *NotErasedError) Error() string {
	return fmt.Sprintf("flash is not erased at 0x%08X (0x%02X)", e.Address, e.Value)
}

// PageWriteError indicates that programming a page failed.
type PageWriteError struct {
	PageAddress uint64
	Err         error
}

func (e *PageWriteError) Error() string {
	return fmt.Sprintf("failed to write page at 0x%08X: %v", e.PageAddress, e.Err)
}

func (e *PageWriteError) Unwrap() error {
	return e.Err
}

// FlashReadError indicates that reading flash through the algorithm failed.
type FlashReadError struct {
	Address uint64
	Err     error
}

func (e *FlashReadError) Error() string {
	return fmt.Sprintf("failed to read flash at 0x%08X: %v", e.Address, e.Err)
}

func (e *FlashReadError) Unwrap() error {
	return e.Err
}
