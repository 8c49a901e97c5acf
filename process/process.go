// Package process provides interfaces and types for process manipulation
package process

import "errors"

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully attached or after it has been detached.
	ErrProcessNotOpen = errors.New("process not open")

	ErrInvalidPointer = errors.New("invalid pointer read")

	// ErrProcessNotFound is returned when no running process has the requested image name.
	ErrProcessNotFound = errors.New("process not found")

	// ErrAccessDenied is returned when the OS refuses to open the process with full access.
	ErrAccessDenied = errors.New("access denied")

	// ErrPartialTransfer is returned when a read or write moved fewer bytes than requested.
	ErrPartialTransfer = errors.New("partial memory transfer")

	ErrAllocationFailed = errors.New("remote allocation failed")
	ErrFreeFailed       = errors.New("remote free failed")

	// ErrRegionQuery is returned when the region containing an address cannot be described.
	ErrRegionQuery = errors.New("region query failed")

	ErrThreadCreate = errors.New("remote thread creation failed")

	// ErrThreadTimeout is returned when a remote thread did not finish within its wait budget.
	// The thread is left running.
	ErrThreadTimeout = errors.New("remote thread timed out")
)
