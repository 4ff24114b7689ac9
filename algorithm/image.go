package algorithm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Address is an optional target address. The zero value is "not present".
type Address struct {
	value uint64
	valid bool
}

// At returns a present Address.
func At(address uint64) Address {
	return Address{value: address, valid: true}
}

// Get returns the address and whether it is present.
func (a Address) Get() (uint64, bool) {
	return a.value, a.valid
}

// Valid reports whether the address is present.
func (a Address) Valid() bool {
	return a.valid
}

func (a Address) String() string {
	if !a.valid {
		return "none"
	}
	return fmt.Sprintf("0x%08X", a.value)
}

// Range is a half-open address range [Start, End).
type Range struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// Size returns the number of bytes in the range.
func (r Range) Size() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether address lies inside the range.
func (r Range) Contains(address uint64) bool {
	return address >= r.Start && address < r.End
}

// ContainsRange reports whether other lies entirely inside the range.
func (r Range) ContainsRange(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("0x%08X..0x%08X", r.Start, r.End)
}

// SectorDescription describes a run of equally sized sectors. Address is the
// offset from the start of the flash; the description applies until the
// next description or the end of the flash.
type SectorDescription struct {
	Size    uint64 `yaml:"size"`
	Address uint64 `yaml:"address"`
}

// FlashProperties describes the flash device an algorithm drives.
type FlashProperties struct {
	AddressRange    Range  `yaml:"address_range"`
	PageSize        uint32 `yaml:"page_size"`
	ErasedByteValue uint8  `yaml:"erased_byte_value"`

	// ProgramPageTimeout is the page program timeout in milliseconds.
	ProgramPageTimeout uint32 `yaml:"program_page_timeout"`

	// EraseSectorTimeout is the sector erase timeout in milliseconds.
	EraseSectorTimeout uint32 `yaml:"erase_sector_timeout"`

	Sectors []SectorDescription `yaml:"sectors"`
}

// TransferEncoding is the representation of page data handed to the
// program_page and verify routines.
type TransferEncoding int

const (
	// EncodingRaw transfers page bytes as-is.
	EncodingRaw TransferEncoding = iota

	// EncodingZlib transfers each page as a zlib stream. Descriptions may call
	// it "miniz".
	EncodingZlib

	// EncodingLZ4 transfers each page as an LZ4 block.
	EncodingLZ4
)

func (e TransferEncoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingZlib:
		return "zlib"
	case EncodingLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// ParseTransferEncoding parses an encoding name as used in descriptions.
func ParseTransferEncoding(name string) (TransferEncoding, error) {
	switch strings.ToLower(name) {
	case "", "raw":
		return EncodingRaw, nil
	case "zlib", "miniz":
		return EncodingZlib, nil
	case "lz4":
		return EncodingLZ4, nil
	default:
		return 0, fmt.Errorf("unknown transfer encoding: %q", name)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *TransferEncoding) UnmarshalText(text []byte) error {
	v, err := ParseTransferEncoding(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (e TransferEncoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Image is an assembled flash algorithm, ready to be downloaded to target RAM.
// It is read-only once built.
type Image struct {
	Name string

	// LoadAddress is where Instructions are written. The first word is a
	// breakpoint that routines return to.
	LoadAddress  uint64
	Instructions []uint32

	// StaticBase is loaded into the static base register on init calls.
	StaticBase uint64

	StackTop           uint64
	StackSize          uint64
	StackOverflowCheck bool

	// PageBuffers holds the RAM addresses of the page buffers. Two or more
	// buffers allow double buffering.
	PageBuffers []uint64

	Init        Address
	Uninit      Address
	EraseAll    Address
	EraseSector uint64
	ProgramPage uint64
	Verify      Address
	ReadFlash   Address
	BlankCheck  Address

	FlashProperties FlashProperties

	// RTTControlBlock is the address of the algorithm's RTT control block.
	RTTControlBlock Address

	TransferEncoding TransferEncoding
}

// InstructionBytes returns the instruction words in little-endian byte order.
func (img *Image) InstructionBytes() []byte {
	out := make([]byte, 4*len(img.Instructions))
	for i, w := range img.Instructions {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

// StackBottom returns the lowest address of the algorithm stack.
func (img *Image) StackBottom() uint64 {
	return img.StackTop - img.StackSize
}

// DoubleBufferingSupported reports whether the image declares at least two
// page buffers.
func (img *Image) DoubleBufferingSupported() bool {
	return len(img.PageBuffers) > 1
}

// Fingerprint returns a short BLAKE3 digest of the instruction image. It
// identifies an algorithm build in logs.
func (img *Image) Fingerprint() string {
	sum := blake3.Sum256(img.InstructionBytes())
	return hex.EncodeToString(sum[:8])
}
