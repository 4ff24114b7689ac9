package algorithm

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/moffa90/go-flashalgo/target"
)

// Breakpoint headers placed at the load address. Routines return to the
// header, which halts the core.
var (
	// bkpt #0 followed by a branch to itself, valid in Thumb and A32.
	armHeader = []uint32{0xE00ABE00}

	// ebreak
	riscvHeader = []uint32{0x00100073}
)

// stackAlign is the alignment of the algorithm stack.
const stackAlign = 8

// Header returns the breakpoint header for the given instruction set.
func Header(isa target.InstructionSet) ([]uint32, error) {
	switch isa {
	case target.Thumb2, target.A32:
		return armHeader, nil
	case target.RV32, target.RV32C:
		return riscvHeader, nil
	default:
		return nil, errors.Errorf("no algorithm header for instruction set %s", isa)
	}
}

// Assemble places a raw algorithm into the given RAM range and returns the
// resulting Image.
//
// RAM layout, from low to high addresses:
//
//	[header][code][stack][page buffer 0][page buffer 1]
//
// A second page buffer is only allocated when it fits, so double buffering
// depends on the amount of RAM available. The stack size is rounded up to
// the stack alignment. raw is not modified.
func Assemble(raw *RawAlgorithm, ram Range, isa target.InstructionSet) (*Image, error) {
	if raw == nil {
		return nil, errors.New("raw algorithm cannot be nil")
	}
	if err := validateRaw(raw); err != nil {
		return nil, err
	}
	r := *raw
	applyDefaults(&r)
	raw = &r

	header, err := Header(isa)
	if err != nil {
		return nil, err
	}
	headerSize := uint64(4 * len(header))

	code := toWords(raw.Instructions)
	instructions := make([]uint32, 0, len(header)+len(code))
	instructions = append(instructions, header...)
	instructions = append(instructions, code...)

	loadAddress := ram.Start
	if raw.LoadAddress != nil {
		if *raw.LoadAddress < ram.Start+headerSize {
			return nil, errors.Errorf("load address 0x%08X leaves no room for the header in RAM %s",
				*raw.LoadAddress, ram)
		}
		loadAddress = *raw.LoadAddress - headerSize
	}
	codeStart := loadAddress + headerSize
	codeEnd := loadAddress + uint64(4*len(instructions))

	stackSize := alignUp(*raw.StackSize, stackAlign)
	stackBottom := alignUp(codeEnd, stackAlign)
	stackTop := stackBottom + stackSize

	pageSize := uint64(raw.FlashProperties.PageSize)
	bufferStart := alignUp(stackTop, 4)
	if bufferStart+pageSize > ram.End {
		return nil, errors.Errorf("algorithm %q does not fit RAM %s: needs 0x%X bytes",
			raw.Name, ram, bufferStart+pageSize-ram.Start)
	}

	buffers := []uint64{bufferStart}
	if second := bufferStart + pageSize; second+pageSize <= ram.End {
		buffers = append(buffers, second)
	}

	img := &Image{
		Name:               raw.Name,
		LoadAddress:        loadAddress,
		Instructions:       instructions,
		StaticBase:         codeStart + raw.DataSectionOffset,
		StackTop:           stackTop,
		StackSize:          stackSize,
		StackOverflowCheck: *raw.StackOverflowCheck,
		PageBuffers:        buffers,
		EraseSector:        codeStart + raw.PCEraseSector,
		ProgramPage:        codeStart + raw.PCProgramPage,
		Init:               offset(codeStart, raw.PCInit),
		Uninit:             offset(codeStart, raw.PCUninit),
		EraseAll:           offset(codeStart, raw.PCEraseAll),
		Verify:             offset(codeStart, raw.PCVerify),
		ReadFlash:          offset(codeStart, raw.PCReadFlash),
		BlankCheck:         offset(codeStart, raw.PCBlankCheck),
		FlashProperties:    raw.FlashProperties,
		TransferEncoding:   raw.TransferEncoding,
	}
	if raw.RTTLocation != nil {
		img.RTTControlBlock = At(*raw.RTTLocation)
	}

	return img, nil
}

func offset(base uint64, pc *uint64) Address {
	if pc == nil {
		return Address{}
	}
	return At(base + *pc)
}

// toWords packs little-endian bytes into words, zero padding the last word.
func toWords(data []byte) []uint32 {
	words := make([]uint32, (len(data)+3)/4)
	var buf [4]byte
	for i := range words {
		buf = [4]byte{}
		copy(buf[:], data[4*i:])
		words[i] = binary.LittleEndian.Uint32(buf[:])
	}
	return words
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
