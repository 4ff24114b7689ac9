package ihex

import "github.com/moffa90/go-flashalgo/layout"

// RecordType is the type field of a record.
type RecordType byte

const (
	RecordData            RecordType = 0x00
	RecordEOF             RecordType = 0x01
	RecordExtendedSegment RecordType = 0x02
	RecordStartSegment    RecordType = 0x03
	RecordExtendedLinear  RecordType = 0x04
	RecordStartLinear     RecordType = 0x05
)

// Segment is a run of contiguous data.
type Segment struct {
	Address uint64
	Data    []byte
}

// End returns the address one past the last byte of the segment.
func (s Segment) End() uint64 {
	return s.Address + uint64(len(s.Data))
}

// Image is a parsed Intel HEX file.
type Image struct {
	// Segments are sorted by address and do not touch or overlap.
	Segments []Segment

	// Start is the entry point from a start address record, if the file
	// has one. Start segment addresses are converted to linear addresses.
	Start    uint32
	HasStart bool
}

// Size returns the number of data bytes in the image.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// AddTo adds every segment to b.
func (img *Image) AddTo(b *layout.Builder) error {
	for _, s := range img.Segments {
		if err := b.AddData(s.Address, s.Data); err != nil {
			return err
		}
	}
	return nil
}
