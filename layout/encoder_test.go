package layout

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/moffa90/go-flashalgo/algorithm"
)

func restoredLayout(t *testing.T) *Layout {
	t.Helper()

	b := NewBuilder()
	if err := b.AddData(0x08000000, bytes.Repeat([]byte{0x12, 0x34}, 50)); err != nil {
		t.Fatal(err)
	}
	l, err := b.Build(testRegion, testProps, true)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestEncoder(t *testing.T) {
	encodings := []algorithm.TransferEncoding{
		algorithm.EncodingRaw,
		algorithm.EncodingZlib,
		algorithm.EncodingLZ4,
	}

	for _, encoding := range encodings {
		t.Run(encoding.String(), func(t *testing.T) {
			l := restoredLayout(t)

			enc, err := NewEncoder(encoding, l, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enc.Encoding() != encoding || enc.IgnoreFills() {
				t.Error("encoder parameters not recorded")
			}
			if enc.Layout() != l {
				t.Error("Layout() should return the source layout")
			}
			if len(enc.Sectors()) != 1 {
				t.Errorf("got %d sectors, want 1", len(enc.Sectors()))
			}

			pages := enc.Pages()
			if len(pages) != 4 {
				t.Fatalf("got %d pages, want 4", len(pages))
			}
			for i, p := range pages {
				if p.Address != l.Pages[i].Address || p.Size() != 256 {
					t.Errorf("page %d = 0x%08X (%d bytes)", i, p.Address, p.Size())
				}

				decoded, err := Decode(encoding, p.Data, int(p.Size()))
				if err != nil {
					t.Fatalf("Decode() page %d error: %v", i, err)
				}
				if !bytes.Equal(decoded, l.Pages[i].Data) {
					t.Errorf("page %d does not decode to the layout data", i)
				}
				if encoding != algorithm.EncodingRaw && len(p.Data) >= 256 {
					t.Errorf("page %d encoded to %d bytes, want compression", i, len(p.Data))
				}
			}

			ignoring, err := NewEncoder(encoding, l, true)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ignoring.Pages()) != 1 || ignoring.Pages()[0].Address != 0x08000000 {
				t.Errorf("ignoring fills kept %d pages, want only the written one", len(ignoring.Pages()))
			}
			if len(ignoring.Sectors()) != 1 {
				t.Error("ignoring fills should not drop sectors")
			}
		})
	}
}

func TestEncoderIncompressible(t *testing.T) {
	data := make([]byte, 256)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}

	l := &Layout{
		Sectors: []Sector{{0x08000000, 1024}},
		Pages:   []Page{NewPage(0x08000000, data)},
	}

	for _, encoding := range []algorithm.TransferEncoding{algorithm.EncodingZlib, algorithm.EncodingLZ4} {
		t.Run(encoding.String(), func(t *testing.T) {
			_, err := NewEncoder(encoding, l, false)
			if !errors.Is(err, ErrPageTooLarge) {
				t.Errorf("error = %v, want ErrPageTooLarge", err)
			}
		})
	}
}

func TestEncodeUnsupported(t *testing.T) {
	if _, err := Encode(algorithm.TransferEncoding(9), []byte{1}); err == nil {
		t.Error("Encode() should fail for unknown encodings")
	}
	if _, err := Decode(algorithm.TransferEncoding(9), []byte{1}, 1); err == nil {
		t.Error("Decode() should fail for unknown encodings")
	}
	if _, err := NewEncoder(algorithm.TransferEncoding(9), restoredLayout(t), false); err == nil {
		t.Error("NewEncoder() should fail for unknown encodings")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		encoding algorithm.TransferEncoding
		data     []byte
		size     int
	}{
		{"zlib garbage", algorithm.EncodingZlib, []byte{0x00, 0x01, 0x02}, 16},
		{"zlib short", algorithm.EncodingZlib, mustEncode(t, algorithm.EncodingZlib, make([]byte, 8)), 16},
		{"lz4 wrong size", algorithm.EncodingLZ4, mustEncode(t, algorithm.EncodingLZ4, make([]byte, 64)), 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.encoding, tt.data, tt.size); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func mustEncode(t *testing.T, encoding algorithm.TransferEncoding, data []byte) []byte {
	t.Helper()
	out, err := Encode(encoding, data)
	if err != nil {
		t.Fatal(err)
	}
	return out
}
