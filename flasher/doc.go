// Package flasher runs CMSIS-Pack style flash algorithms on a target to
// erase, program and verify its flash memory.
//
// # Overview
//
// A Flasher drives the complete flash sequence:
//   - Downloading the algorithm into target RAM and checking it arrived intact
//   - Initializing the algorithm for an operation (erase, program, verify)
//   - Calling its routines with the target's calling convention and polling
//     the core until they return
//   - Restoring unwritten bytes, erasing sectors, programming pages and
//     verifying the result
//   - Uninitializing the algorithm
//
// # Basic Usage
//
//	// User provides the debug probe connection (target.Session)
//	session := myprobe.Attach("STM32F411")
//
//	// Assemble the algorithm from a target description
//	desc, _ := algorithm.Parse("stm32f4.yaml")
//	raw, _ := desc.DefaultAlgorithm()
//	ram, _ := desc.RAMRegion()
//	img, err := algorithm.Assemble(raw, ram.Range, target.Thumb2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Collect the data to write
//	b := layout.NewBuilder()
//	_ = b.AddData(0x08000000, firmware)
//
//	f := flasher.New(session, img, flasher.WithVerify(true))
//	for _, region := range desc.NVMRegions() {
//	    if err := f.AddRegion(region, b); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	if err := f.Program(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Progress Tracking
//
// Every phase reports started, progress, and finished or failed events:
//
//	f := flasher.New(session, img,
//	    flasher.WithProgressCallback(func(p flasher.Progress) {
//	        fmt.Printf("[%s] %s %.1f%%\n", p.Phase, p.Event, p.Percentage)
//	    }),
//	)
//
// Text the algorithm prints over RTT arrives as EventMessage when an RTT
// attach function is configured with WithRTT.
//
// # Operation Handles
//
// The algorithm is initialized for exactly one operation at a time. RunErase,
// RunProgram and RunVerify initialize it, pass a handle restricted to the
// routines of that operation to a function, and uninitialize it afterwards:
//
//	err := f.RunErase(ctx, func(e *flasher.EraseFlasher, regions []*flasher.LoadedRegion) error {
//	    return e.EraseSector(ctx, regions[0].Layout().Sectors[0])
//	})
//
// # Context Support
//
// The context is checked between routine calls. A routine that was started
// on the target is never abandoned: the flasher waits for it to return or
// for its timeout to expire.
//
// # Error Handling
//
// The package provides structured error types:
//   - TransportError: core memory, register or run control access failed
//   - VerificationError: flash contents differ from the written data
//   - protocol.RoutineError: a routine returned a nonzero result
//   - AlgorithmNotLoadedError: the algorithm read back from RAM is corrupt
//   - StackOverflowError: a routine overwrote the end of its stack
//   - TimeoutError: a routine did not return in time
//   - UnexpectedCoreStatusError: the core locked up
//   - ErrChipEraseNotSupported: no way to erase the whole chip
//
// Context wrappers (InitError, UninitError, EraseError, ChipEraseError,
// PageWriteError, FlashReadError) carry the failing step and unwrap to the
// cause.
package flasher
