package layout

import "fmt"

// Sector is an erase unit of the flash.
type Sector struct {
	Address uint64
	Size    uint64
}

// End returns the first address after the sector.
func (s Sector) End() uint64 {
	return s.Address + s.Size
}

// Page is a program unit of the flash together with the bytes to write.
// Pages produced by an Encoder may carry encoded data; Size always reports
// the number of flash bytes the page covers.
type Page struct {
	Address uint64
	Data    []byte

	size uint32
}

// NewPage returns a page covering len(data) bytes at address.
func NewPage(address uint64, data []byte) Page {
	return Page{Address: address, Data: data, size: uint32(len(data))}
}

// Size returns the number of flash bytes covered by the page.
func (p Page) Size() uint32 {
	return p.size
}

// End returns the first address after the page.
func (p Page) End() uint64 {
	return p.Address + uint64(p.size)
}

// Fill is a byte range inside a page that the caller did not supply. Its
// content is either the erased value or, after restoring, the previous flash
// content.
type Fill struct {
	Address   uint64
	Size      uint64
	PageIndex int
}

// End returns the first address after the fill.
func (f Fill) End() uint64 {
	return f.Address + f.Size
}

// Layout is the sector, page and fill geometry of one flash region.
type Layout struct {
	Sectors []Sector
	Pages   []Page
	Fills   []Fill
}

// Clone returns a deep copy of the layout.
func (l *Layout) Clone() *Layout {
	out := &Layout{
		Sectors: append([]Sector(nil), l.Sectors...),
		Pages:   make([]Page, len(l.Pages)),
		Fills:   append([]Fill(nil), l.Fills...),
	}
	for i, p := range l.Pages {
		p.Data = append([]byte(nil), p.Data...)
		out.Pages[i] = p
	}
	return out
}

// FillsOf returns the fills that belong to the page at index.
func (l *Layout) FillsOf(index int) []Fill {
	var out []Fill
	for _, f := range l.Fills {
		if f.PageIndex == index {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the structural invariants of the layout: sectors and pages
// are ordered and non-overlapping, every page lies inside a sector, and every
// fill lies inside its page.
func (l *Layout) Validate() error {
	for i := 1; i < len(l.Sectors); i++ {
		if l.Sectors[i].Address < l.Sectors[i-1].End() {
			return fmt.Errorf("sector %d at 0x%08X overlaps previous sector", i, l.Sectors[i].Address)
		}
	}

	s := 0
	for i, p := range l.Pages {
		if i > 0 && p.Address < l.Pages[i-1].End() {
			return fmt.Errorf("page %d at 0x%08X overlaps previous page", i, p.Address)
		}
		for s < len(l.Sectors) && l.Sectors[s].End() <= p.Address {
			s++
		}
		if s == len(l.Sectors) || p.Address < l.Sectors[s].Address || p.End() > l.Sectors[s].End() {
			return fmt.Errorf("page %d at 0x%08X is not inside a sector", i, p.Address)
		}
	}

	for i, f := range l.Fills {
		if f.PageIndex < 0 || f.PageIndex >= len(l.Pages) {
			return fmt.Errorf("fill %d references invalid page %d", i, f.PageIndex)
		}
		page := l.Pages[f.PageIndex]
		if f.Size == 0 || f.Address < page.Address || f.End() > page.End() {
			return fmt.Errorf("fill %d at 0x%08X (%d bytes) is outside page 0x%08X", i, f.Address, f.Size, page.Address)
		}
	}

	return nil
}
