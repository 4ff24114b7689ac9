package flasher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-flashalgo/algorithm"
	"github.com/moffa90/go-flashalgo/layout"
	"github.com/moffa90/go-flashalgo/protocol"
	"github.com/moffa90/go-flashalgo/target"
)

// Flasher runs a flash algorithm on a target to erase, program and verify
// its flash memory.
//
// A Flasher owns the algorithm image and the data of every region added with
// AddRegion. It is not safe for concurrent use.
type Flasher struct {
	session target.Session
	image   *algorithm.Image
	regions []*LoadedRegion
	loaded  bool

	config   Config
	progress *progress
	log      logger
}

// New creates a new Flasher that runs image on the cores of session.
//
// Example:
//
//	img, _ := algorithm.Assemble(raw, ram.Range, target.Thumb2)
//	f := flasher.New(session, img,
//	    flasher.WithProgressCallback(progressFunc),
//	    flasher.WithVerify(true),
//	)
func New(session target.Session, image *algorithm.Image, opts ...Option) *Flasher {
	if session == nil {
		panic("session cannot be nil")
	}
	if image == nil {
		panic("image cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flasher{
		session:  session,
		image:    image,
		config:   cfg,
		progress: newProgress(cfg.ProgressCallback),
		log:      logger{cfg.Logger},
	}
}

// Image returns the flash algorithm.
func (f *Flasher) Image() *algorithm.Image {
	return f.image
}

// Regions returns the regions added to the flasher.
func (f *Flasher) Regions() []*LoadedRegion {
	return f.regions
}

// DoubleBufferingSupported reports whether the algorithm has room for two
// page buffers.
func (f *Flasher) DoubleBufferingSupported() bool {
	return f.image.DoubleBufferingSupported()
}

// IsChipEraseSupported reports whether the target or the algorithm can erase
// the whole chip.
func (f *Flasher) IsChipEraseSupported() bool {
	_, ok := f.session.(target.ChipEraser)
	return ok || f.image.EraseAll.Valid()
}

// AddRegion computes the flash layout of the data in b that falls into
// region and adds it to the flasher.
func (f *Flasher) AddRegion(region algorithm.Region, b *layout.Builder) error {
	if region.Kind != algorithm.RegionNVM {
		return fmt.Errorf("region %q is not a flash region", region.Name)
	}
	if !f.image.FlashProperties.AddressRange.ContainsRange(region.Range) {
		return fmt.Errorf("region %q %s is outside the flash range %s of algorithm %q",
			region.Name, region.Range, f.image.FlashProperties.AddressRange, f.image.Name)
	}

	l, err := b.Build(region.Range, f.image.FlashProperties, f.config.RestoreUnwrittenBytes)
	if err != nil {
		return fmt.Errorf("build layout for region %q: %w", region.Name, err)
	}

	f.regions = append(f.regions, &LoadedRegion{Region: region, Data: NewFlashData(l)})
	return nil
}

func (f *Flasher) core(ctx context.Context) (target.Core, error) {
	core, err := f.session.Core(ctx, f.config.CoreIndex)
	if err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("attach core %d", f.config.CoreIndex), Err: err}
	}
	return core, nil
}

func (f *Flasher) ensureLoaded(ctx context.Context) error {
	if f.loaded {
		return nil
	}
	if err := f.load(ctx); err != nil {
		return err
	}
	f.loaded = true
	return nil
}

// load downloads the algorithm into target RAM and checks it was written
// correctly.
func (f *Flasher) load(ctx context.Context) error {
	img := f.image
	f.log.debug("loading flash algorithm",
		"name", img.Name,
		"address", fmt.Sprintf("0x%08X", img.LoadAddress),
		"fingerprint", img.Fingerprint(),
	)

	core, err := f.core(ctx)
	if err != nil {
		return err
	}

	f.log.debug("reset and halt", "core", f.config.CoreIndex)
	if err := core.ResetAndHalt(ctx, protocol.ResetHaltTimeout); err != nil {
		return &TransportError{Op: "reset and halt", Err: err}
	}

	if err := core.Write32(ctx, img.LoadAddress, img.Instructions); err != nil {
		return &TransportError{Op: "write flash algorithm", Err: err}
	}

	readBack := make([]uint32, len(img.Instructions))
	if err := core.Read32(ctx, img.LoadAddress, readBack); err != nil {
		return &TransportError{Op: "read flash algorithm", Err: err}
	}

	for i, want := range img.Instructions {
		if readBack[i] == want {
			continue
		}
		err := &AlgorithmNotLoadedError{
			Address:  img.LoadAddress + uint64(4*i),
			Expected: want,
			Actual:   readBack[i],
		}
		f.log.error("failed to verify flash algorithm", "error", err)
		return err
	}

	if img.StackOverflowCheck {
		if err := f.fillStack(ctx, core); err != nil {
			return err
		}
	}

	f.log.debug("RAM contents match flash algorithm")
	return nil
}

// fillStack writes the guard byte over the whole algorithm stack.
func (f *Flasher) fillStack(ctx context.Context, core target.Core) error {
	bottom := f.image.StackBottom()
	size := f.image.StackSize

	var err error
	if size%4 == 0 {
		fill := make([]uint32, size/4)
		for i := range fill {
			fill[i] = protocol.StackFillByte * 0x01010101
		}
		err = core.Write32(ctx, bottom, fill)
	} else {
		fill := make([]byte, size)
		for i := range fill {
			fill[i] = protocol.StackFillByte
		}
		err = core.Write(ctx, bottom, fill)
	}
	if err != nil {
		return &TransportError{Op: "fill algorithm stack", Err: err}
	}
	return nil
}

// init loads the algorithm if needed and runs its Init routine for op.
func (f *Flasher) init(ctx context.Context, op protocol.Operation) (*ActiveFlasher, error) {
	if err := f.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	core, err := f.core(ctx)
	if err != nil {
		return nil, err
	}

	isa, err := core.InstructionSet(ctx)
	if err != nil {
		return nil, &TransportError{Op: "read instruction set", Err: err}
	}

	f.log.debug("preparing flasher", "operation", op.String(), "instruction_set", isa.String())
	a := &ActiveFlasher{
		core:         core,
		isa:          isa,
		image:        f.image,
		op:           op,
		attach:       f.config.AttachRTT,
		pollInterval: f.config.PollInterval,
		progress:     f.progress,
		log:          f.log,
	}

	if err := a.init(ctx, f.config.Clock); err != nil {
		return nil, err
	}
	return a, nil
}

// run initializes the algorithm for op, runs fn and uninitializes the
// algorithm. When fn fails the algorithm is left initialized.
func (f *Flasher) run(ctx context.Context, op protocol.Operation, fn func(*ActiveFlasher) error) error {
	a, err := f.init(ctx, op)
	if err != nil {
		return err
	}

	if err := fn(a); err != nil {
		return err
	}

	return a.uninit(ctx)
}

// RunErase runs fn with the algorithm initialized for erasing.
func (f *Flasher) RunErase(ctx context.Context, fn func(*EraseFlasher, []*LoadedRegion) error) error {
	return f.run(ctx, protocol.OperationErase, func(a *ActiveFlasher) error {
		return fn(&EraseFlasher{a}, f.regions)
	})
}

// RunProgram runs fn with the algorithm initialized for programming.
func (f *Flasher) RunProgram(ctx context.Context, fn func(*ProgramFlasher, []*LoadedRegion) error) error {
	return f.run(ctx, protocol.OperationProgram, func(a *ActiveFlasher) error {
		return fn(&ProgramFlasher{a}, f.regions)
	})
}

// RunVerify runs fn with the algorithm initialized for verifying.
func (f *Flasher) RunVerify(ctx context.Context, fn func(*VerifyFlasher, []*LoadedRegion) error) error {
	return f.run(ctx, protocol.OperationVerify, func(a *ActiveFlasher) error {
		return fn(&VerifyFlasher{a}, f.regions)
	})
}

// RunEraseAll erases the whole chip. A chip erase sequence of the target is
// preferred over the algorithm's EraseChip routine. The algorithm is
// downloaded again after the sequence ran.
func (f *Flasher) RunEraseAll(ctx context.Context) error {
	f.progress.start(PhaseErasing, 0, 0)

	var err error
	if eraser, ok := f.session.(target.ChipEraser); ok {
		f.log.info("erasing chip with the target erase sequence")
		if err = eraser.SequenceEraseAll(ctx); err != nil {
			err = &ChipEraseError{Err: err}
		} else {
			// The sequence may have reset the core and clobbered RAM.
			f.loaded = false
			err = f.ensureLoaded(ctx)
		}
	} else {
		err = f.RunErase(ctx, func(e *EraseFlasher, _ []*LoadedRegion) error {
			return e.EraseAll(ctx)
		})
	}

	f.progress.done(err)
	return err
}

// RunBlankCheck checks that every sector of every region is erased.
func (f *Flasher) RunBlankCheck(ctx context.Context) error {
	units, size := f.sectorTotals()
	f.progress.start(PhaseBlankChecking, units, size)

	err := f.RunErase(ctx, func(e *EraseFlasher, regions []*LoadedRegion) error {
		for _, r := range regions {
			for _, s := range r.Layout().Sectors {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("cancelled: %w", err)
				}
				if err := e.BlankCheck(ctx, s); err != nil {
					return err
				}
			}
		}
		return nil
	})

	f.progress.done(err)
	return err
}

// Program writes the data of all regions to flash:
//  1. Restore the unwritten bytes of touched pages (WithRestoreUnwrittenBytes)
//  2. Erase all touched sectors (unless WithSkipErase)
//  3. Program all pages, double buffered when possible (WithDoubleBuffering)
//  4. Verify the written data (WithVerify)
//
// A verification failure is returned as a *VerificationError.
//
// Example:
//
//	b := layout.NewBuilder()
//	_ = b.AddData(0x08000000, firmware)
//	_ = f.AddRegion(region, b)
//	err := f.Program(ctx)
func (f *Flasher) Program(ctx context.Context) error {
	f.log.debug("starting program procedure",
		"double_buffering", f.config.DoubleBuffering,
		"restore_unwritten", f.config.RestoreUnwrittenBytes,
		"skip_erase", f.config.SkipErase,
		"verify", f.config.Verify,
	)
	start := time.Now()

	if f.config.RestoreUnwrittenBytes {
		if err := f.FillUnwritten(ctx); err != nil {
			return fmt.Errorf("fill unwritten bytes: %w", err)
		}
	}

	if !f.config.SkipErase {
		if err := f.eraseSectors(ctx); err != nil {
			return fmt.Errorf("erase sectors: %w", err)
		}
	}

	if err := f.programPages(ctx); err != nil {
		return fmt.Errorf("program pages: %w", err)
	}

	if f.config.Verify {
		if err := f.verify(ctx, !f.config.RestoreUnwrittenBytes); err != nil {
			if IsVerificationError(err) {
				return err
			}
			return fmt.Errorf("verify: %w", err)
		}
	}

	_, size := f.pageTotals()
	f.log.info("programming complete",
		"regions", len(f.regions),
		"bytes", size,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// FillUnwritten reads the current flash content of every fill into the page
// data, so that programming the page writes the bytes back unchanged.
func (f *Flasher) FillUnwritten(ctx context.Context) error {
	var units int
	var size uint64
	for _, r := range f.regions {
		for _, fill := range r.Layout().Fills {
			units++
			size += fill.Size
		}
	}
	f.progress.start(PhaseFilling, units, size)

	fillPages := func(read func(address uint64, data []byte) error) error {
		for _, r := range f.regions {
			l := r.Data.LayoutMut()
			for _, fill := range l.Fills {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("cancelled: %w", err)
				}

				start := time.Now()
				page := l.Pages[fill.PageIndex]
				off := fill.Address - page.Address
				if err := read(fill.Address, page.Data[off:off+fill.Size]); err != nil {
					return err
				}
				f.progress.unit(fill.Size, time.Since(start))
			}
		}
		return nil
	}

	var err error
	if f.image.ReadFlash.Valid() {
		err = f.RunVerify(ctx, func(v *VerifyFlasher, _ []*LoadedRegion) error {
			return fillPages(func(address uint64, data []byte) error {
				return v.ReadFlash(ctx, address, data)
			})
		})
	} else {
		err = f.withCore(ctx, func(core target.Core) error {
			return fillPages(func(address uint64, data []byte) error {
				return readMemory(ctx, core, address, data)
			})
		})
	}

	f.progress.done(err)
	return err
}

// Verify checks the flash contents of all regions against their data. With
// ignoreFilled, bytes the caller did not supply are not compared. It
// returns false when the contents differ.
func (f *Flasher) Verify(ctx context.Context, ignoreFilled bool) (bool, error) {
	err := f.verify(ctx, ignoreFilled)
	if IsVerificationError(err) {
		return false, nil
	}
	return err == nil, err
}

func (f *Flasher) verify(ctx context.Context, ignoreFilled bool) error {
	units, size := f.pageTotals()
	f.progress.start(PhaseVerifying, units, size)

	err := f.doVerify(ctx, ignoreFilled)
	if err != nil {
		f.log.debug("verification failed", "error", err)
	}

	f.progress.done(err)
	return err
}

func (f *Flasher) doVerify(ctx context.Context, ignoreFilled bool) error {
	var mismatch *VerificationError

	if f.image.Verify.Valid() {
		f.log.debug("verifying with the algorithm's verify routine")

		err := f.RunVerify(ctx, func(v *VerifyFlasher, regions []*LoadedRegion) error {
			for _, r := range regions {
				enc, err := r.Data.Encoder(f.image.TransferEncoding, ignoreFilled)
				if err != nil {
					return err
				}

				for _, page := range enc.Pages() {
					if err := ctx.Err(); err != nil {
						return fmt.Errorf("cancelled: %w", err)
					}

					start := time.Now()
					if err := v.VerifyPage(ctx, page); err != nil {
						// A mismatch still uninitializes the algorithm.
						if errors.As(err, &mismatch) {
							return nil
						}
						return err
					}
					f.progress.unit(uint64(page.Size()), time.Since(start))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if mismatch != nil {
			return mismatch
		}
		return nil
	}

	f.log.debug("verifying by reading back flash contents")

	compare := func(read func(address uint64, data []byte) error) error {
		for _, r := range f.regions {
			l := r.Layout()
			for idx, page := range l.Pages {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("cancelled: %w", err)
				}

				start := time.Now()
				readBack := make([]byte, len(page.Data))
				if err := read(page.Address, readBack); err != nil {
					return err
				}

				if ignoreFilled {
					// Fill bytes are not written, mask them with the expected
					// content.
					for _, fill := range l.FillsOf(idx) {
						off := fill.Address - page.Address
						copy(readBack[off:off+fill.Size], page.Data[off:off+fill.Size])
					}
				}

				for i := range readBack {
					if readBack[i] != page.Data[i] {
						mismatch = &VerificationError{
							Address: page.Address + uint64(i),
							Reason:  fmt.Sprintf("read back 0x%02X, expected 0x%02X", readBack[i], page.Data[i]),
						}
						return nil
					}
				}
				f.progress.unit(uint64(page.Size()), time.Since(start))
			}
		}
		return nil
	}

	var err error
	if f.image.ReadFlash.Valid() {
		err = f.RunVerify(ctx, func(v *VerifyFlasher, _ []*LoadedRegion) error {
			return compare(func(address uint64, data []byte) error {
				return v.ReadFlash(ctx, address, data)
			})
		})
	} else {
		err = f.withCore(ctx, func(core target.Core) error {
			return compare(func(address uint64, data []byte) error {
				return readMemory(ctx, core, address, data)
			})
		})
	}
	if err != nil {
		return err
	}
	if mismatch != nil {
		return mismatch
	}
	return nil
}

// eraseSectors erases every sector of every region.
func (f *Flasher) eraseSectors(ctx context.Context) error {
	units, size := f.sectorTotals()
	f.progress.start(PhaseErasing, units, size)

	err := f.RunErase(ctx, func(e *EraseFlasher, regions []*LoadedRegion) error {
		for _, r := range regions {
			enc, err := r.Data.Encoder(f.image.TransferEncoding, false)
			if err != nil {
				return err
			}

			for _, sector := range enc.Sectors() {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("cancelled: %w", err)
				}
				if err := e.EraseSector(ctx, sector); err != nil {
					return &EraseError{SectorAddress: sector.Address, Err: err}
				}
			}
		}
		return nil
	})

	f.progress.done(err)
	return err
}

func (f *Flasher) programPages(ctx context.Context) error {
	units, size := f.pageTotals()
	f.progress.start(PhaseProgramming, units, size)

	var err error
	if f.DoubleBufferingSupported() && f.config.DoubleBuffering {
		err = f.programDoubleBuffered(ctx)
	} else {
		err = f.programSimple(ctx)
	}

	f.progress.done(err)
	return err
}

// programSimple programs one page at a time through buffer 0.
func (f *Flasher) programSimple(ctx context.Context) error {
	return f.RunProgram(ctx, func(p *ProgramFlasher, regions []*LoadedRegion) error {
		for _, r := range regions {
			f.log.debug("programming region", "range", r.Region.Range.String(), "bytes", r.Region.Range.Size())

			enc, err := r.Data.Encoder(f.image.TransferEncoding, false)
			if err != nil {
				return err
			}

			for _, page := range enc.Pages() {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("cancelled: %w", err)
				}
				if err := p.ProgramPage(ctx, page); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// programDoubleBuffered alternates between two page buffers. While the
// algorithm writes one page, the next one is transferred into the other
// buffer. A buffer is only reloaded after the write that used it finished.
func (f *Flasher) programDoubleBuffered(ctx context.Context) error {
	return f.RunProgram(ctx, func(p *ProgramFlasher, regions []*LoadedRegion) error {
		for _, r := range regions {
			f.log.debug("programming region", "range", r.Region.Range.String(), "bytes", r.Region.Range.Size(), "double_buffered", true)

			enc, err := r.Data.Encoder(f.image.TransferEncoding, false)
			if err != nil {
				return err
			}

			var (
				pending *layout.Page
				started time.Time
				buffer  int
			)
			flush := func() error {
				if pending == nil {
					return nil
				}
				if err := p.WaitForWriteEnd(ctx, pending.Address); err != nil {
					return err
				}
				f.progress.unit(uint64(pending.Size()), time.Since(started))
				pending = nil
				return nil
			}

			pages := enc.Pages()
			for i := range pages {
				page := &pages[i]

				if err := ctx.Err(); err != nil {
					if ferr := flush(); ferr != nil {
						return ferr
					}
					return fmt.Errorf("cancelled: %w", err)
				}

				address, err := p.LoadPageBuffer(ctx, page.Data, buffer)
				if err != nil {
					return &PageWriteError{PageAddress: page.Address, Err: err}
				}

				if err := flush(); err != nil {
					return err
				}

				started = time.Now()
				if err := p.StartProgramPageWithBuffer(ctx, address, page.Address, uint64(len(page.Data))); err != nil {
					return err
				}
				pending = page
				buffer = 1 - buffer
			}

			if err := flush(); err != nil {
				return err
			}
		}
		return nil
	})
}

// withCore runs fn on the flasher's core without initializing the algorithm.
func (f *Flasher) withCore(ctx context.Context, fn func(target.Core) error) error {
	core, err := f.core(ctx)
	if err != nil {
		return err
	}
	return fn(core)
}

func readMemory(ctx context.Context, core target.Core, address uint64, data []byte) error {
	if err := core.Read(ctx, address, data); err != nil {
		return &TransportError{Op: "read memory", Err: err}
	}
	return nil
}

func (f *Flasher) sectorTotals() (int, uint64) {
	var units int
	var size uint64
	for _, r := range f.regions {
		for _, s := range r.Layout().Sectors {
			units++
			size += s.Size
		}
	}
	return units, size
}

func (f *Flasher) pageTotals() (int, uint64) {
	var units int
	var size uint64
	for _, r := range f.regions {
		for _, p := range r.Layout().Pages {
			units++
			size += uint64(p.Size())
		}
	}
	return units, size
}
