// Package layout computes the flash geometry of a write and encodes it for
// transfer to a flash algorithm.
//
// A Builder collects the data to write. Build maps it onto the sectors and
// pages of one flash region:
//
//	b := layout.NewBuilder()
//	_ = b.AddData(0x08000000, firmware)
//	l, err := b.Build(region.Range, img.FlashProperties, true)
//
// Bytes of a page that the caller did not supply are recorded as fills. An
// Encoder turns the layout into the page set that is actually transferred,
// optionally compressed (zlib or LZ4) and optionally without pages that hold
// nothing but fill bytes.
package layout
