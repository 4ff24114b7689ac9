package ihex

import (
	"bytes"
	"strings"
	"testing"

	"github.com/moffa90/go-flashalgo/layout"
)

func TestParseReader(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []Segment
		wantStart uint32
		hasStart  bool
	}{
		{
			name: "single record",
			input: ":0400000001020304F2\n" +
				":00000001FF\n",
			want: []Segment{
				{Address: 0x0, Data: []byte{0x01, 0x02, 0x03, 0x04}},
			},
		},
		{
			name: "contiguous records are merged",
			input: ":0400000001020304F2\n" +
				":0400040005060708DE\n" +
				":00000001FF\n",
			want: []Segment{
				{Address: 0x0, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
			},
		},
		{
			name: "gap starts a new segment",
			input: ":0400000001020304F2\n" +
				":02001000AABB89\n" +
				":00000001FF\n",
			want: []Segment{
				{Address: 0x0, Data: []byte{1, 2, 3, 4}},
				{Address: 0x10, Data: []byte{0xAA, 0xBB}},
			},
		},
		{
			name: "out of order records are sorted",
			input: ":0400040005060708DE\n" +
				":0400000001020304F2\n" +
				":00000001FF\n",
			want: []Segment{
				{Address: 0x0, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
			},
		},
		{
			name: "extended linear address",
			input: ":020000040800F2\n" +
				":0400000001020304F2\n" +
				":0400000508000101ED\n" +
				":00000001FF\n",
			want: []Segment{
				{Address: 0x08000000, Data: []byte{1, 2, 3, 4}},
			},
			wantStart: 0x08000101,
			hasStart:  true,
		},
		{
			name: "extended segment address",
			input: ":020000021000EC\n" +
				":0400000001020304F2\n" +
				":0400000300000100F8\n" +
				":00000001FF\n",
			want: []Segment{
				{Address: 0x10000, Data: []byte{1, 2, 3, 4}},
			},
			wantStart: 0x100,
			hasStart:  true,
		},
		{
			name: "record crossing a 64 KiB boundary",
			input: ":020000040800F2\n" +
				":04FFFE0001020304F5\n" +
				":020000040801F1\n" +
				":020002000909EA\n" +
				":00000001FF\n",
			want: []Segment{
				{Address: 0x0800FFFE, Data: []byte{1, 2, 3, 4, 9, 9}},
			},
		},
		{
			name: "with empty lines and CRLF",
			input: "\r\n" +
				":0400000001020304F2\r\n" +
				"\r\n" +
				":00000001FF\r\n",
			want: []Segment{
				{Address: 0x0, Data: []byte{1, 2, 3, 4}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ParseReader(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(img.Segments) != len(tt.want) {
				t.Fatalf("got %d segments, want %d", len(img.Segments), len(tt.want))
			}
			for i, want := range tt.want {
				got := img.Segments[i]
				if got.Address != want.Address {
					t.Errorf("segment %d address = 0x%08X, want 0x%08X", i, got.Address, want.Address)
				}
				if !bytes.Equal(got.Data, want.Data) {
					t.Errorf("segment %d data = % X, want % X", i, got.Data, want.Data)
				}
			}

			if img.HasStart != tt.hasStart || img.Start != tt.wantStart {
				t.Errorf("start = 0x%08X (%v), want 0x%08X (%v)", img.Start, img.HasStart, tt.wantStart, tt.hasStart)
			}
		})
	}
}

func TestParseReaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{
			name:   "empty file",
			input:  "",
			errMsg: "empty file",
		},
		{
			name:   "missing end of file",
			input:  ":0400000001020304F2\n",
			errMsg: "missing end of file record",
		},
		{
			name:   "no start code",
			input:  "0400000001020304F2\n",
			errMsg: "must start with ':'",
		},
		{
			name:   "invalid hex",
			input:  ":04000000010203ZZF2\n",
			errMsg: "invalid hex data",
		},
		{
			name:   "too short",
			input:  ":0000\n",
			errMsg: "record too short",
		},
		{
			name:   "length mismatch",
			input:  ":0500000001020304F1\n",
			errMsg: "data length mismatch",
		},
		{
			name:   "checksum mismatch",
			input:  ":0400000001020304FF\n",
			errMsg: "checksum mismatch",
		},
		{
			name:   "unknown record type",
			input:  ":00000006FA\n:00000001FF\n",
			errMsg: "unknown record type",
		},
		{
			name: "overlapping records",
			input: ":0400000001020304F2\n" +
				":020002000909EA\n" +
				":00000001FF\n",
			errMsg: "overlapping data at 0x00000002",
		},
		{
			name: "record after end of file",
			input: ":00000001FF\n" +
				":0400000001020304F2\n",
			errMsg: "record after end of file record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReader(strings.NewReader(tt.input))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		data []byte
		want byte
	}{
		{[]byte{0x04, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04}, 0xF2},
		{[]byte{0x00, 0x00, 0x00, 0x01}, 0xFF},
		{[]byte{}, 0x00},
	}

	for _, tt := range tests {
		if got := calculateChecksum(tt.data); got != tt.want {
			t.Errorf("calculateChecksum(% X) = 0x%02X, want 0x%02X", tt.data, got, tt.want)
		}
	}
}

func TestImageAddTo(t *testing.T) {
	img, err := ParseReader(strings.NewReader(":020000040800F2\n" +
		":0400000001020304F2\n" +
		":02001000AABB89\n" +
		":00000001FF\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Size() != 6 {
		t.Errorf("Size() = %d, want 6", img.Size())
	}

	b := layout.NewBuilder()
	if err := img.AddTo(b); err != nil {
		t.Fatalf("AddTo() error: %v", err)
	}
	if b.Len() != 6 {
		t.Errorf("builder holds %d bytes, want 6", b.Len())
	}

	// Adding the same data again overlaps.
	if err := img.AddTo(b); err == nil {
		t.Error("AddTo() should fail when the data overlaps")
	}
}
