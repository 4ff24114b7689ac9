package layout

import (
	"fmt"
	"sort"

	"github.com/moffa90/go-flashalgo/algorithm"
)

type block struct {
	address uint64
	data    []byte
}

func (b block) end() uint64 {
	return b.address + uint64(len(b.data))
}

// Builder collects the data to be written and computes the layout for a
// flash region.
type Builder struct {
	blocks []block
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddData adds a block of bytes to be written at address. Blocks may not
// overlap.
func (b *Builder) AddData(address uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	nb := block{address: address, data: append([]byte(nil), data...)}
	i := sort.Search(len(b.blocks), func(i int) bool { return b.blocks[i].address >= address })

	if i > 0 && b.blocks[i-1].end() > address {
		return &OverlapError{Address: address, Existing: b.blocks[i-1].address}
	}
	if i < len(b.blocks) && nb.end() > b.blocks[i].address {
		return &OverlapError{Address: address, Existing: b.blocks[i].address}
	}

	b.blocks = append(b.blocks, block{})
	copy(b.blocks[i+1:], b.blocks[i:])
	b.blocks[i] = nb
	return nil
}

// Len returns the total number of bytes added.
func (b *Builder) Len() int {
	n := 0
	for _, blk := range b.blocks {
		n += len(blk.data)
	}
	return n
}

// OverlapError is returned when data is added over data already present.
type OverlapError struct {
	Address  uint64
	Existing uint64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("data at 0x%08X overlaps data added at 0x%08X", e.Address, e.Existing)
}

// Build computes the layout of the data that falls inside region.
//
// Pages touched by the data are initialized with the erased byte value and the
// untouched parts recorded as fills. With restoreUnwritten every page of every
// touched sector is included, since erasing the sector destroys them.
func (b *Builder) Build(region algorithm.Range, props algorithm.FlashProperties, restoreUnwritten bool) (*Layout, error) {
	if props.PageSize == 0 {
		return nil, fmt.Errorf("page size must be greater than zero")
	}

	l := &Layout{}
	pageSize := uint64(props.PageSize)
	pageIndex := make(map[uint64]int)
	var covered [][]bool

	addPage := func(address uint64) int {
		if idx, ok := pageIndex[address]; ok {
			return idx
		}
		data := make([]byte, pageSize)
		for i := range data {
			data[i] = props.ErasedByteValue
		}
		l.Pages = append(l.Pages, NewPage(address, data))
		covered = append(covered, make([]bool, pageSize))
		pageIndex[address] = len(l.Pages) - 1
		return len(l.Pages) - 1
	}

	for _, blk := range b.blocks {
		if !region.Contains(blk.address) {
			if blk.address < region.Start && blk.end() > region.Start {
				return nil, fmt.Errorf("data at 0x%08X crosses the start of region %s", blk.address, region)
			}
			continue
		}
		if blk.end() > region.End {
			return nil, fmt.Errorf("data at 0x%08X (%d bytes) crosses the end of region %s",
				blk.address, len(blk.data), region)
		}

		address := blk.address
		for address < blk.end() {
			sector, err := sectorAt(props, address)
			if err != nil {
				return nil, err
			}

			if n := len(l.Sectors); n == 0 || l.Sectors[n-1].Address != sector.Address {
				l.Sectors = append(l.Sectors, sector)
				if restoreUnwritten {
					for p := sector.Address; p < sector.End(); p += pageSize {
						addPage(p)
					}
				}
			}

			pageAddress := sector.Address + (address-sector.Address)/pageSize*pageSize
			idx := addPage(pageAddress)

			end := min(blk.end(), pageAddress+pageSize)
			src := blk.data[address-blk.address : end-blk.address]
			offset := address - pageAddress
			copy(l.Pages[idx].Data[offset:], src)
			for i := offset; i < offset+uint64(len(src)); i++ {
				covered[idx][i] = true
			}

			address = end
		}
	}

	for idx, page := range l.Pages {
		start := -1
		for i := 0; i <= len(covered[idx]); i++ {
			gap := i < len(covered[idx]) && !covered[idx][i]
			switch {
			case gap && start < 0:
				start = i
			case !gap && start >= 0:
				l.Fills = append(l.Fills, Fill{
					Address:   page.Address + uint64(start),
					Size:      uint64(i - start),
					PageIndex: idx,
				})
				start = -1
			}
		}
	}

	return l, nil
}

// sectorAt returns the sector containing address.
func sectorAt(props algorithm.FlashProperties, address uint64) (Sector, error) {
	flash := props.AddressRange
	if !flash.Contains(address) {
		return Sector{}, fmt.Errorf("address 0x%08X is outside flash %s", address, flash)
	}

	offset := address - flash.Start
	var desc *algorithm.SectorDescription
	for i := range props.Sectors {
		if props.Sectors[i].Address > offset {
			break
		}
		desc = &props.Sectors[i]
	}
	if desc == nil {
		return Sector{}, fmt.Errorf("no sector description covers address 0x%08X", address)
	}
	if desc.Size%uint64(props.PageSize) != 0 {
		return Sector{}, fmt.Errorf("sector size 0x%X is not a multiple of page size 0x%X", desc.Size, props.PageSize)
	}

	start := flash.Start + desc.Address + (offset-desc.Address)/desc.Size*desc.Size
	return Sector{Address: start, Size: desc.Size}, nil
}
