package protocol

import (
	"fmt"
	"time"
)

// Operation identifies the high-level operation a flash algorithm is
// initialized for. The numeric value is passed to the Init and UnInit routines.
type Operation uint32

// Operation codes per the CMSIS-Pack flash algorithm interface.
const (
	OperationErase   Operation = 1
	OperationProgram Operation = 2
	OperationVerify  Operation = 3
)

func (o Operation) String() string {
	switch o {
	case OperationErase:
		return "Erase"
	case OperationProgram:
		return "Program"
	case OperationVerify:
		return "Verify"
	default:
		return fmt.Sprintf("Operation(%d)", uint32(o))
	}
}

// Routine names as reported in errors and logs.
const (
	RoutineInit        = "init"
	RoutineUninit      = "uninit"
	RoutineEraseAll    = "erase_all"
	RoutineEraseSector = "erase_sector"
	RoutineProgramPage = "program_page"
	RoutineVerify      = "verify"
	RoutineReadFlash   = "read_flash"
	RoutineBlankCheck  = "blank_check"
)

// Routine timeouts. Sector erase and page program timeouts come from the
// algorithm's flash properties.
const (
	// InitTimeout bounds the Init and UnInit routines.
	InitTimeout = 2 * time.Second

	// EraseAllTimeout bounds the EraseChip routine.
	EraseAllTimeout = 40 * time.Second

	// VerifyTimeout bounds the Verify routine for one page.
	VerifyTimeout = 30 * time.Second

	// ReadFlashTimeout bounds the ReadFlash routine for one chunk.
	ReadFlashTimeout = 30 * time.Second

	// BlankCheckTimeout bounds the BlankCheck routine for one sector.
	BlankCheckTimeout = 10 * time.Second

	// ResetHaltTimeout bounds the reset-and-halt before the algorithm is loaded.
	ResetHaltTimeout = 500 * time.Millisecond

	// RTTAttachTimeout bounds attaching to the algorithm's RTT control block.
	RTTAttachTimeout = time.Second
)

// StackFillByte is written over the algorithm stack before the first call.
// A different value at the bottom of the stack after a call means the
// routine overflowed its stack.
const StackFillByte = 0x56

// Result codes.
const (
	// ResultSuccess is returned by every routine except Verify on success.
	ResultSuccess = 0
)
