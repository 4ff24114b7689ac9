package flasher

import (
	"github.com/moffa90/go-flashalgo/algorithm"
	"github.com/moffa90/go-flashalgo/layout"
)

// FlashData is the data of one flash region. It is either raw, holding a
// layout that may be modified, or loaded, holding an encoder built from the
// layout for one transfer encoding and fill policy.
type FlashData struct {
	raw *layout.Layout

	encoder     *layout.Encoder
	encoding    algorithm.TransferEncoding
	ignoreFills bool
}

// NewFlashData returns raw flash data for l.
func NewFlashData(l *layout.Layout) *FlashData {
	return &FlashData{raw: l}
}

// Loaded reports whether an encoder is cached.
func (d *FlashData) Loaded() bool {
	return d.encoder != nil
}

// Layout returns the layout for reading.
func (d *FlashData) Layout() *layout.Layout {
	if d.encoder != nil {
		return d.encoder.Layout()
	}
	return d.raw
}

// LayoutMut returns the layout for modification. A cached encoder is
// dropped, the next Encoder call rebuilds it from the modified layout.
func (d *FlashData) LayoutMut() *layout.Layout {
	d.unload()
	return d.raw
}

// Encoder returns the encoder for the given encoding and fill policy,
// rebuilding it when the cached one was built with different parameters.
func (d *FlashData) Encoder(encoding algorithm.TransferEncoding, ignoreFills bool) (*layout.Encoder, error) {
	if d.encoder != nil && (d.encoding != encoding || d.ignoreFills != ignoreFills) {
		d.unload()
	}
	if d.encoder != nil {
		return d.encoder, nil
	}

	enc, err := layout.NewEncoder(encoding, d.raw, ignoreFills)
	if err != nil {
		return nil, err
	}

	d.encoder = enc
	d.encoding = encoding
	d.ignoreFills = ignoreFills
	d.raw = nil
	return enc, nil
}

func (d *FlashData) unload() {
	if d.encoder == nil {
		return
	}
	d.raw = d.encoder.Layout().Clone()
	d.encoder = nil
}

// LoadedRegion is a non-volatile memory region together with the data to
// write into it.
type LoadedRegion struct {
	Region algorithm.Region
	Data   *FlashData
}

// Layout returns the flash layout of the region.
func (r *LoadedRegion) Layout() *layout.Layout {
	return r.Data.Layout()
}
