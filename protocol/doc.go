// Package protocol implements the calling convention of CMSIS-Pack style flash
// algorithms.
//
// # Calling Convention
//
// A flash algorithm is position independent machine code loaded into target
// RAM. The host calls a routine by setting up the core registers and resuming
// the core:
//
//	PC        = routine entry point
//	R0..R3    = arguments
//	LR        = algorithm load address (+1 in Thumb state), holding a breakpoint
//	R9, SP    = static base and stack top, set on the init call only
//
// The routine returns into the breakpoint, the core halts and the result is
// read from R0. All routines except Verify return zero on success.
//
// # Routines
//
//	int  Init        (addr, clk, fnc)   fnc: 1=erase, 2=program, 3=verify
//	int  UnInit      (fnc)
//	int  EraseChip   (void)
//	int  EraseSector (addr)
//	int  ProgramPage (addr, sz, buf)
//	u32  Verify      (addr, sz, buf)    returns addr+sz on success
//	int  ReadFlash   (addr, sz, buf)
//	int  BlankCheck  (addr, sz, pat)
//
// # Error Handling
//
// A nonzero result is reported as a RoutineError:
//
//	if result != protocol.ResultSuccess {
//	    return &protocol.RoutineError{Name: protocol.RoutineEraseSector, ErrorCode: result}
//	}
//	// Error() returns: "routine erase_sector failed with error code 0x1"
package protocol
