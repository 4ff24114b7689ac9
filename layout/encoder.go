package layout

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"

	"github.com/moffa90/go-flashalgo/algorithm"
)

// ErrPageTooLarge is returned when an encoded page does not fit a page buffer.
var ErrPageTooLarge = errors.New("encoded page does not fit a page buffer")

// Encoder turns a layout into the page set handed to the flash algorithm for
// a given transfer encoding and fill policy. The encoder owns its layout.
type Encoder struct {
	encoding    algorithm.TransferEncoding
	ignoreFills bool
	layout      *Layout
	pages       []Page
}

// NewEncoder encodes the pages of l.
//
// When ignoreFills is set, pages that consist only of fill bytes are left
// out: nothing the caller asked for lives in them. Compressed encodings
// compress every page on its own; the encoded page keeps the flash address
// and flash size of the original page.
func NewEncoder(encoding algorithm.TransferEncoding, l *Layout, ignoreFills bool) (*Encoder, error) {
	e := &Encoder{
		encoding:    encoding,
		ignoreFills: ignoreFills,
		layout:      l,
	}

	for idx, page := range l.Pages {
		if ignoreFills && filledOnly(l, idx) {
			continue
		}

		switch encoding {
		case algorithm.EncodingRaw:
			e.pages = append(e.pages, page)

		case algorithm.EncodingZlib, algorithm.EncodingLZ4:
			data, err := Encode(encoding, page.Data)
			if err != nil {
				return nil, fmt.Errorf("encode page 0x%08X: %w", page.Address, err)
			}
			if len(data) > len(page.Data) {
				return nil, fmt.Errorf("page 0x%08X: %w (%d > %d bytes)",
					page.Address, ErrPageTooLarge, len(data), len(page.Data))
			}
			e.pages = append(e.pages, Page{Address: page.Address, Data: data, size: page.size})

		default:
			return nil, fmt.Errorf("unsupported transfer encoding: %s", encoding)
		}
	}

	return e, nil
}

// Pages returns the encoded pages in address order.
func (e *Encoder) Pages() []Page {
	return e.pages
}

// Sectors returns the sectors to erase.
func (e *Encoder) Sectors() []Sector {
	return e.layout.Sectors
}

// Layout returns the layout the encoder was built from.
func (e *Encoder) Layout() *Layout {
	return e.layout
}

// Encoding returns the transfer encoding of the pages.
func (e *Encoder) Encoding() algorithm.TransferEncoding {
	return e.encoding
}

// IgnoreFills reports the fill policy the encoder was built with.
func (e *Encoder) IgnoreFills() bool {
	return e.ignoreFills
}

func filledOnly(l *Layout, idx int) bool {
	var filled uint64
	for _, f := range l.FillsOf(idx) {
		filled += f.Size
	}
	return filled == uint64(l.Pages[idx].Size())
}

// Encode encodes a single page with the given transfer encoding.
func Encode(encoding algorithm.TransferEncoding, data []byte) ([]byte, error) {
	switch encoding {
	case algorithm.EncodingRaw:
		return data, nil

	case algorithm.EncodingZlib:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		return buf.Bytes(), nil

	case algorithm.EncodingLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if n == 0 {
			return nil, ErrPageTooLarge
		}
		return dst[:n], nil

	default:
		return nil, fmt.Errorf("unsupported transfer encoding: %s", encoding)
	}
}

// Decode reverses Encode. size is the decoded page size.
func Decode(encoding algorithm.TransferEncoding, data []byte, size int) ([]byte, error) {
	switch encoding {
	case algorithm.EncodingRaw:
		return data, nil

	case algorithm.EncodingZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		defer r.Close()
		out := make([]byte, size)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		return out, nil

	case algorithm.EncodingLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported transfer encoding: %s", encoding)
	}
}
