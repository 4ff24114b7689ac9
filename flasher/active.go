package flasher

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-flashalgo/algorithm"
	"github.com/moffa90/go-flashalgo/layout"
	"github.com/moffa90/go-flashalgo/protocol"
	"github.com/moffa90/go-flashalgo/rtt"
	"github.com/moffa90/go-flashalgo/target"
)

// ActiveFlasher holds the core while the flash algorithm is initialized for
// one operation. It is only handed out by the Flasher's Run helpers, wrapped
// in the handle type of the operation.
type ActiveFlasher struct {
	core  target.Core
	isa   target.InstructionSet
	image *algorithm.Image
	op    protocol.Operation

	attach       rtt.AttachFunc
	rtt          rtt.Reader
	pollInterval time.Duration

	progress *progress
	log      logger
}

// EraseFlasher is an ActiveFlasher initialized for erasing.
type EraseFlasher struct {
	*ActiveFlasher
}

// ProgramFlasher is an ActiveFlasher initialized for programming.
type ProgramFlasher struct {
	*ActiveFlasher
}

// VerifyFlasher is an ActiveFlasher initialized for verifying and reading.
type VerifyFlasher struct {
	*ActiveFlasher
}

// Operation returns the operation the algorithm was initialized for.
func (a *ActiveFlasher) Operation() protocol.Operation {
	return a.op
}

// Core returns the core running the algorithm.
func (a *ActiveFlasher) Core() target.Core {
	return a.core
}

func (a *ActiveFlasher) init(ctx context.Context, clock uint32) error {
	pc, ok := a.image.Init.Get()
	if !ok {
		return nil
	}

	regs, err := protocol.NewRegisters(pc, a.image.FlashProperties.AddressRange.Start, uint64(clock), uint64(a.op))
	if err != nil {
		return err
	}

	result, err := a.callFunctionAndWait(ctx, protocol.RoutineInit, regs, true, protocol.InitTimeout)
	if err != nil {
		return &InitError{Err: err}
	}
	if result != protocol.ResultSuccess {
		return &protocol.RoutineError{Name: protocol.RoutineInit, ErrorCode: result}
	}

	return nil
}

func (a *ActiveFlasher) uninit(ctx context.Context) error {
	pc, ok := a.image.Uninit.Get()
	if !ok {
		return nil
	}
	a.log.debug("running uninit routine", "operation", a.op.String())

	regs, err := protocol.NewRegisters(pc, uint64(a.op))
	if err != nil {
		return err
	}

	result, err := a.callFunctionAndWait(ctx, protocol.RoutineUninit, regs, false, protocol.InitTimeout)
	if err != nil {
		return &UninitError{Err: err}
	}
	if result != protocol.ResultSuccess {
		return &protocol.RoutineError{Name: protocol.RoutineUninit, ErrorCode: result}
	}

	return nil
}

func (a *ActiveFlasher) callFunctionAndWait(ctx context.Context, name string, regs protocol.Registers, init bool, timeout time.Duration) (uint32, error) {
	if err := a.callFunction(ctx, regs, init); err != nil {
		return 0, err
	}

	result, err := a.waitForCompletion(ctx, name, timeout)
	if err != nil {
		a.log.debug("routine call failed", "routine", name, "error", err)
	}
	return result, err
}

// callFunction sets up the call registers and resumes the core. It does not
// wait for the routine to return.
func (a *ActiveFlasher) callFunction(ctx context.Context, regs protocol.Registers, init bool) error {
	a.log.debug("calling routine", "registers", regs.String(), "init", init)

	file := a.core.Registers()

	type write struct {
		reg   target.Register
		value uint32
	}
	writes := []write{{file.ProgramCounter, regs.PC}}
	for i, v := range regs.Args {
		writes = append(writes, write{file.Arguments[i], v})
	}

	if init {
		staticBase, err := protocol.ToRegister(a.image.StaticBase)
		if err != nil {
			return err
		}
		stackTop, err := protocol.ToRegister(a.image.StackTop)
		if err != nil {
			return err
		}
		writes = append(writes, write{file.StaticBase, staticBase}, write{file.StackPointer, stackTop})
	}

	// Routines return into the breakpoint at the load address. Thumb code
	// needs the low bit set to stay in Thumb state.
	ret := a.image.LoadAddress
	if a.isa.ThumbEntry() {
		ret++
	}
	retReg, err := protocol.ToRegister(ret)
	if err != nil {
		return err
	}
	writes = append(writes, write{file.ReturnAddress, retReg})

	for _, w := range writes {
		if err := a.core.WriteRegister(ctx, w.reg, w.value); err != nil {
			return &TransportError{Op: "write register " + w.reg.Name, Err: err}
		}

		if a.log.debugEnabled() {
			value, err := a.core.ReadRegister(ctx, w.reg)
			if err != nil {
				return &TransportError{Op: "read register " + w.reg.Name, Err: err}
			}
			a.log.debug("register written",
				"register", w.reg.Name,
				"id", fmt.Sprintf("0x%X", w.reg.ID),
				"value", fmt.Sprintf("0x%08X", value),
				"expected", fmt.Sprintf("0x%08X", w.value),
			)
		}
	}

	if err := a.core.Run(ctx); err != nil {
		return &TransportError{Op: "run core", Err: err}
	}

	a.attachRTT(ctx)

	return nil
}

func (a *ActiveFlasher) attachRTT(ctx context.Context) {
	address, ok := a.image.RTTControlBlock.Get()
	if !ok || a.attach == nil || a.rtt != nil {
		return
	}

	reader, err := a.attach(ctx, a.core, address, protocol.RTTAttachTimeout)
	switch {
	case err == nil:
		a.rtt = reader
	case errors.Is(err, rtt.ErrNoControlBlock):
	default:
		a.log.error("RTT could not be initialized", "address", fmt.Sprintf("0x%08X", address), "error", err)
	}
}

// waitForCompletion polls the core until the running routine returns and
// yields its result. It cannot be cancelled: a routine that was started
// either completes or runs into its timeout.
func (a *ActiveFlasher) waitForCompletion(ctx context.Context, name string, timeout time.Duration) (uint32, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	for {
		status, err := a.core.Status(ctx)
		if err != nil {
			return 0, &TransportError{Op: "read core status", Err: err}
		}

		if status == target.StatusHalted {
			// All RTT output is in the buffers once the core is halted.
			a.readRTT(ctx)
			break
		}
		if status == target.StatusLockedUp {
			return 0, &UnexpectedCoreStatusError{Status: status}
		}

		a.readRTT(ctx)
		if time.Since(start) >= timeout {
			return 0, &TimeoutError{Operation: name, Timeout: timeout}
		}
		time.Sleep(a.pollInterval)
	}

	if err := a.checkForStackOverflow(ctx); err != nil {
		return 0, err
	}

	reg := a.core.Registers().Result
	result, err := a.core.ReadRegister(ctx, reg)
	if err != nil {
		return 0, &TransportError{Op: "read register " + reg.Name, Err: err}
	}
	a.log.debug("routine returned", "routine", name, "result", fmt.Sprintf("0x%X", result))

	return result, nil
}

func (a *ActiveFlasher) readRTT(ctx context.Context) {
	if a.rtt == nil {
		return
	}

	for _, ch := range a.rtt.UpChannels() {
		size := ch.BufferSize()
		if size <= 0 {
			continue
		}
		buf := make([]byte, size)
		n, err := ch.Read(ctx, buf)
		if err != nil {
			a.log.debug("reading RTT failed", "channel", rtt.ChannelName(ch), "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		msg := string(bytes.ToValidUTF8(buf[:n], []byte("\uFFFD")))
		a.log.debug("RTT message", "channel", rtt.ChannelName(ch), "message", msg)
		a.progress.message(msg)
	}
}

func (a *ActiveFlasher) checkForStackOverflow(ctx context.Context) error {
	if !a.image.StackOverflowCheck {
		return nil
	}

	value, err := a.core.ReadWord8(ctx, a.image.StackBottom())
	if err != nil {
		return &TransportError{Op: "read stack guard", Err: err}
	}
	if value != protocol.StackFillByte {
		return &StackOverflowError{Operation: a.op.String()}
	}

	return nil
}

// ReadFlash reads flash contents into data. With a ReadFlash routine the
// read goes through page buffer 0 in page sized chunks, otherwise the flash
// is read directly from the memory map.
func (a *ActiveFlasher) ReadFlash(ctx context.Context, address uint64, data []byte) error {
	pc, ok := a.image.ReadFlash.Get()
	if !ok {
		if err := a.core.Read(ctx, address, data); err != nil {
			return &TransportError{Op: "read memory", Err: err}
		}
		return nil
	}

	pageSize := int(a.image.FlashProperties.PageSize)
	buffer := a.image.PageBuffers[0]

	for off := 0; off < len(data); off += pageSize {
		chunk := data[off:min(off+pageSize, len(data))]
		chunkAddress := address + uint64(off)

		regs, err := protocol.NewRegisters(pc, chunkAddress, uint64(len(chunk)), buffer)
		if err != nil {
			return err
		}

		result, err := a.callFunctionAndWait(ctx, protocol.RoutineReadFlash, regs, false, protocol.ReadFlashTimeout)
		if err != nil {
			return &FlashReadError{Address: chunkAddress, Err: err}
		}
		if result != protocol.ResultSuccess {
			return &FlashReadError{
				Address: chunkAddress,
				Err:     &protocol.RoutineError{Name: protocol.RoutineReadFlash, ErrorCode: result},
			}
		}

		if err := a.core.Read(ctx, buffer, chunk); err != nil {
			return &TransportError{Op: "read page buffer", Err: err}
		}
	}

	return nil
}

// LoadPageBuffer transfers data into page buffer n and returns the buffer
// address. It panics when n is not a buffer of the algorithm.
func (a *ActiveFlasher) LoadPageBuffer(ctx context.Context, data []byte, n int) (uint64, error) {
	if n < 0 || n >= len(a.image.PageBuffers) {
		panic(fmt.Sprintf("flasher: page buffer %d does not exist, algorithm has %d", n, len(a.image.PageBuffers)))
	}

	address := a.image.PageBuffers[n]
	if err := a.loadData(ctx, address, data); err != nil {
		return 0, err
	}
	return address, nil
}

// loadData writes data to RAM as whole words. A trailing partial word is
// padded with the erased byte value.
func (a *ActiveFlasher) loadData(ctx context.Context, address uint64, data []byte) error {
	a.log.debug("loading data into RAM", "address", fmt.Sprintf("0x%08X", address), "bytes", len(data))

	padded := data
	if rem := len(data) % 4; rem != 0 {
		padded = make([]byte, len(data)+4-rem)
		copy(padded, data)
		for i := len(data); i < len(padded); i++ {
			padded[i] = a.image.FlashProperties.ErasedByteValue
		}
	}

	words := make([]uint32, len(padded)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(padded[4*i:])
	}

	start := time.Now()
	if err := a.core.Write32(ctx, address, words); err != nil {
		return &TransportError{Op: "write page buffer", Err: err}
	}
	a.log.debug("data loaded", "bytes", len(data), "took", time.Since(start).String())

	return nil
}

// EraseAll erases the whole chip with the algorithm's EraseChip routine.
func (e *EraseFlasher) EraseAll(ctx context.Context) error {
	pc, ok := e.image.EraseAll.Get()
	if !ok {
		return ErrChipEraseNotSupported
	}
	e.log.info("erasing entire chip")

	regs, err := protocol.NewRegisters(pc)
	if err != nil {
		return err
	}

	result, err := e.callFunctionAndWait(ctx, protocol.RoutineEraseAll, regs, false, protocol.EraseAllTimeout)
	if err != nil {
		return &ChipEraseError{Err: err}
	}
	if result != protocol.ResultSuccess {
		return &ChipEraseError{Err: &protocol.RoutineError{Name: protocol.RoutineEraseAll, ErrorCode: result}}
	}

	return nil
}

// EraseSector erases one sector.
func (e *EraseFlasher) EraseSector(ctx context.Context, sector layout.Sector) error {
	e.log.info("erasing sector", "address", fmt.Sprintf("0x%08X", sector.Address), "size", sector.Size)
	start := time.Now()

	regs, err := protocol.NewRegisters(e.image.EraseSector, sector.Address)
	if err != nil {
		return err
	}

	timeout := time.Duration(e.image.FlashProperties.EraseSectorTimeout) * time.Millisecond
	result, err := e.callFunctionAndWait(ctx, protocol.RoutineEraseSector, regs, false, timeout)
	if err != nil {
		return err
	}
	e.log.debug("sector erased", "result", result, "took", time.Since(start).String())

	if result != protocol.ResultSuccess {
		return &protocol.RoutineError{Name: protocol.RoutineEraseSector, ErrorCode: result}
	}

	e.progress.unit(sector.Size, time.Since(start))
	return nil
}

// BlankCheck checks that a sector is erased, with the algorithm's
// BlankCheck routine when it has one and by reading the sector otherwise.
func (e *EraseFlasher) BlankCheck(ctx context.Context, sector layout.Sector) error {
	e.log.info("checking sector is blank",
		"start", fmt.Sprintf("0x%08X", sector.Address),
		"end", fmt.Sprintf("0x%08X", sector.End()),
	)
	start := time.Now()
	erased := e.image.FlashProperties.ErasedByteValue

	pc, ok := e.image.BlankCheck.Get()
	if !ok {
		data := make([]byte, sector.Size)
		if err := e.core.Read(ctx, sector.Address, data); err != nil {
			return &TransportError{Op: "read memory", Err: err}
		}
		for i, v := range data {
			if v != erased {
				return &ChipEraseError{Err: &NotErasedError{Address: sector.Address + uint64(i), Value: v}}
			}
		}
		return nil
	}

	regs, err := protocol.NewRegisters(pc, sector.Address, sector.Size, uint64(erased))
	if err != nil {
		return err
	}

	result, err := e.callFunctionAndWait(ctx, protocol.RoutineBlankCheck, regs, false, protocol.BlankCheckTimeout)
	if err != nil {
		return err
	}
	if result != protocol.ResultSuccess {
		return &protocol.RoutineError{Name: protocol.RoutineBlankCheck, ErrorCode: result}
	}

	e.progress.unit(sector.Size, time.Since(start))
	return nil
}

// ProgramPage transfers a page to buffer 0, programs it and waits for the
// write to finish. Every failure is reported as a PageWriteError.
func (p *ProgramFlasher) ProgramPage(ctx context.Context, page layout.Page) error {
	start := time.Now()
	p.log.info("flashing page", "address", fmt.Sprintf("0x%08X", page.Address), "size", len(page.Data))

	buffer, err := p.LoadPageBuffer(ctx, page.Data, 0)
	if err != nil {
		return &PageWriteError{PageAddress: page.Address, Err: err}
	}
	if err := p.StartProgramPageWithBuffer(ctx, buffer, page.Address, uint64(len(page.Data))); err != nil {
		return err
	}
	if err := p.WaitForWriteEnd(ctx, page.Address); err != nil {
		return err
	}

	p.progress.unit(uint64(page.Size()), time.Since(start))
	return nil
}

// StartProgramPageWithBuffer starts programming size bytes from the buffer
// at bufferAddress to pageAddress. It returns as soon as the routine runs;
// WaitForWriteEnd collects the result.
func (p *ProgramFlasher) StartProgramPageWithBuffer(ctx context.Context, bufferAddress, pageAddress, size uint64) error {
	regs, err := protocol.NewRegisters(p.image.ProgramPage, pageAddress, size, bufferAddress)
	if err != nil {
		return &PageWriteError{PageAddress: pageAddress, Err: err}
	}

	if err := p.callFunction(ctx, regs, false); err != nil {
		return &PageWriteError{PageAddress: pageAddress, Err: err}
	}
	return nil
}

// WaitForWriteEnd waits for the page write started last. Failures are
// reported as a PageWriteError for pageAddress.
func (p *ProgramFlasher) WaitForWriteEnd(ctx context.Context, pageAddress uint64) error {
	timeout := time.Duration(p.image.FlashProperties.ProgramPageTimeout) * time.Millisecond

	result, err := p.waitForCompletion(ctx, protocol.RoutineProgramPage, timeout)
	if err == nil && result != protocol.ResultSuccess {
		err = &protocol.RoutineError{Name: protocol.RoutineProgramPage, ErrorCode: result}
	}
	if err != nil {
		return &PageWriteError{PageAddress: pageAddress, Err: err}
	}
	return nil
}

// VerifyPage checks an encoded page with the algorithm's Verify routine.
// A mismatch is reported as a VerificationError.
func (v *VerifyFlasher) VerifyPage(ctx context.Context, page layout.Page) error {
	pc, ok := v.image.Verify.Get()
	if !ok {
		return errors.New("flash algorithm has no verify routine")
	}
	v.log.debug("verifying page", "address", fmt.Sprintf("0x%08X", page.Address), "size", len(page.Data))

	buffer, err := v.LoadPageBuffer(ctx, page.Data, 0)
	if err != nil {
		return err
	}

	regs, err := protocol.NewRegisters(pc, page.Address, uint64(len(page.Data)), buffer)
	if err != nil {
		return err
	}

	result, err := v.callFunctionAndWait(ctx, protocol.RoutineVerify, regs, false, protocol.VerifyTimeout)
	if err != nil {
		return err
	}

	// Verify returns the end address on success and the failing address
	// otherwise.
	if end := page.Address + uint64(len(page.Data)); uint64(result) != end {
		return &VerificationError{
			Address: page.Address,
			Reason:  fmt.Sprintf("verify routine returned 0x%08X, expected 0x%08X", result, end),
		}
	}

	return nil
}
