package algorithm

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RegionKind classifies a memory map entry.
type RegionKind string

const (
	RegionNVM     RegionKind = "nvm"
	RegionRAM     RegionKind = "ram"
	RegionGeneric RegionKind = "generic"
)

// Region is one entry of a target memory map.
type Region struct {
	Kind  RegionKind `yaml:"kind"`
	Name  string     `yaml:"name"`
	Range Range      `yaml:"range"`
}

// UnmarshalYAML accepts both an explicit kind field and the tagged form
// used by probe-rs target files:
//
//	- !Nvm
//	  range: { start: 0x08000000, end: 0x08010000 }
func (r *Region) UnmarshalYAML(value *yaml.Node) error {
	type plain Region
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimPrefix(value.Tag, "!")) {
	case "nvm":
		p.Kind = RegionNVM
	case "ram":
		p.Kind = RegionRAM
	case "generic":
		p.Kind = RegionGeneric
	}

	if p.Kind == "" {
		return errors.Errorf("line %d: memory region has no kind", value.Line)
	}

	*r = Region(p)
	return nil
}

// Blob is binary data stored base64 encoded in a description.
type Blob []byte

// UnmarshalYAML decodes a base64 scalar, ignoring embedded whitespace.
func (b *Blob) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.Join(strings.Fields(s), "")

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid base64 instructions", value.Line)
	}
	*b = data
	return nil
}

// RawAlgorithm is a flash algorithm as declared in a target description.
// Routine addresses are offsets from the start of the code.
type RawAlgorithm struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     bool   `yaml:"default"`

	Instructions Blob `yaml:"instructions"`

	// LoadAddress pins the code to a fixed RAM address. When nil the code
	// is placed at the start of RAM.
	LoadAddress       *uint64 `yaml:"load_address"`
	DataSectionOffset uint64  `yaml:"data_section_offset"`

	PCInit        *uint64 `yaml:"pc_init"`
	PCUninit      *uint64 `yaml:"pc_uninit"`
	PCProgramPage uint64  `yaml:"pc_program_page"`
	PCEraseSector uint64  `yaml:"pc_erase_sector"`
	PCEraseAll    *uint64 `yaml:"pc_erase_all"`
	PCVerify      *uint64 `yaml:"pc_verify"`
	PCReadFlash   *uint64 `yaml:"pc_read"`
	PCBlankCheck  *uint64 `yaml:"pc_blank_check"`

	StackSize          *uint64 `yaml:"stack_size"`
	StackOverflowCheck *bool   `yaml:"stack_overflow_check"`

	// RTTLocation is the absolute address of the RTT control block.
	RTTLocation *uint64 `yaml:"rtt_location"`

	TransferEncoding TransferEncoding `yaml:"transfer_encoding"`
	FlashProperties  FlashProperties  `yaml:"flash_properties"`
}

// Description is a target description: its memory map and flash algorithms.
type Description struct {
	Name            string          `yaml:"name"`
	MemoryMap       []Region        `yaml:"memory_map"`
	FlashAlgorithms []*RawAlgorithm `yaml:"flash_algorithms"`
}

// Algorithm returns the flash algorithm with the given name.
func (d *Description) Algorithm(name string) (*RawAlgorithm, error) {
	for _, a := range d.FlashAlgorithms {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, errors.Errorf("target %q has no flash algorithm %q", d.Name, name)
}

// DefaultAlgorithm returns the algorithm marked default, or the only one.
func (d *Description) DefaultAlgorithm() (*RawAlgorithm, error) {
	for _, a := range d.FlashAlgorithms {
		if a.Default {
			return a, nil
		}
	}
	if len(d.FlashAlgorithms) == 1 {
		return d.FlashAlgorithms[0], nil
	}
	return nil, errors.Errorf("target %q has %d flash algorithms and none is marked default",
		d.Name, len(d.FlashAlgorithms))
}

// RAMRegion returns the first RAM region of the memory map.
func (d *Description) RAMRegion() (Region, bool) {
	for _, r := range d.MemoryMap {
		if r.Kind == RegionRAM {
			return r, true
		}
	}
	return Region{}, false
}

// NVMRegions returns all non-volatile regions of the memory map in order.
func (d *Description) NVMRegions() []Region {
	var out []Region
	for _, r := range d.MemoryMap {
		if r.Kind == RegionNVM {
			out = append(out, r)
		}
	}
	return out
}

// NVMRegionFor returns the NVM region that contains address.
func (d *Description) NVMRegionFor(address uint64) (Region, bool) {
	for _, r := range d.NVMRegions() {
		if r.Range.Contains(address) {
			return r, true
		}
	}
	return Region{}, false
}
