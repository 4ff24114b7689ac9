package protocol

import (
	"fmt"
	"math"
	"strings"
)

// MaxArguments is the number of argument registers of the call convention.
const MaxArguments = 4

// Registers is the register state for one routine call: the entry point and
// up to four arguments. Arguments not given leave their register untouched.
type Registers struct {
	PC   uint32
	Args []uint32
}

// NewRegisters builds the register state for a call to pc with args.
// Every value must fit a 32-bit register.
//
// Example:
//
//	regs, err := protocol.NewRegisters(img.ProgramPage, page.Address, uint64(len(page.Data)), buffer)
func NewRegisters(pc uint64, args ...uint64) (Registers, error) {
	if len(args) > MaxArguments {
		return Registers{}, fmt.Errorf("too many arguments: got %d, maximum is %d", len(args), MaxArguments)
	}

	regs := Registers{Args: make([]uint32, len(args))}

	var err error
	if regs.PC, err = ToRegister(pc); err != nil {
		return Registers{}, err
	}
	for i, a := range args {
		if regs.Args[i], err = ToRegister(a); err != nil {
			return Registers{}, err
		}
	}

	return regs, nil
}

// ToRegister converts an address or size to a 32-bit register value.
func ToRegister(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, &RegisterValueError{Value: v}
	}
	return uint32(v), nil
}

func (r Registers) String() string {
	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = fmt.Sprintf("0x%08X", a)
	}
	return fmt.Sprintf("0x%08X (%s)", r.PC, strings.Join(args, ", "))
}
