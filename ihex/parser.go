package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Constants for Intel HEX record parsing.
const (
	// MinimumRecordBytes is the size of a record without data:
	// byte count, address, type and checksum
	MinimumRecordBytes = 5

	// RecordHeaderSize is the size of the byte count, address and type fields
	RecordHeaderSize = 4
)

// Parse parses an Intel HEX file from the given file path.
//
// Example:
//
//	img, err := ihex.Parse("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d segments, %d bytes\n", len(img.Segments), img.Size())
func Parse(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader parses an Intel HEX file from any io.Reader.
//
// Example:
//
//	img, err := ihex.ParseReader(strings.NewReader(hexContent))
func ParseReader(r io.Reader) (*Image, error) {
	scanner := bufio.NewScanner(r)

	img := &Image{}
	var (
		segments []Segment
		base     uint64
		eof      bool
		lineNum  int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines
		if line == "" {
			continue
		}
		if eof {
			return nil, fmt.Errorf("line %d: record after end of file record", lineNum)
		}

		typ, address, data, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch typ {
		case RecordData:
			if len(data) > 0 {
				segments = append(segments, Segment{Address: base + uint64(address), Data: data})
			}

		case RecordEOF:
			eof = true

		case RecordExtendedSegment, RecordExtendedLinear:
			if len(data) != 2 {
				return nil, fmt.Errorf("line %d: address record has %d data bytes, expected 2", lineNum, len(data))
			}
			v := uint64(data[0])<<8 | uint64(data[1])
			if typ == RecordExtendedSegment {
				base = v << 4
			} else {
				base = v << 16
			}

		case RecordStartSegment, RecordStartLinear:
			if len(data) != 4 {
				return nil, fmt.Errorf("line %d: start address record has %d data bytes, expected 4", lineNum, len(data))
			}
			hi := uint32(data[0])<<8 | uint32(data[1])
			lo := uint32(data[2])<<8 | uint32(data[3])
			if typ == RecordStartSegment {
				// CS:IP
				img.Start = hi<<4 + lo
			} else {
				img.Start = hi<<16 | lo
			}
			img.HasStart = true

		default:
			return nil, fmt.Errorf("line %d: unknown record type 0x%02X", lineNum, byte(typ))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if lineNum == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if !eof {
		return nil, fmt.Errorf("missing end of file record")
	}

	merged, err := merge(segments)
	if err != nil {
		return nil, err
	}
	img.Segments = merged

	return img, nil
}

// parseRecord decodes a single record line and verifies its checksum.
func parseRecord(line string) (RecordType, uint16, []byte, error) {
	if line[0] != ':' {
		return 0, 0, nil, fmt.Errorf("record must start with ':'")
	}

	data, err := hex.DecodeString(line[1:])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid hex data: %w", err)
	}

	if len(data) < MinimumRecordBytes {
		return 0, 0, nil, fmt.Errorf("record too short: got %d bytes, minimum is %d", len(data), MinimumRecordBytes)
	}

	count := int(data[0])
	expectedLen := MinimumRecordBytes + count
	if len(data) != expectedLen {
		return 0, 0, nil, fmt.Errorf("data length mismatch: got %d bytes, expected %d (header=%d + data=%d + checksum=1)",
			len(data), expectedLen, RecordHeaderSize, count)
	}

	checksum := data[len(data)-1]
	calculated := calculateChecksum(data[:len(data)-1])
	if checksum != calculated {
		return 0, 0, nil, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X", checksum, calculated)
	}

	address := uint16(data[1])<<8 | uint16(data[2]) // Big-endian
	payload := make([]byte, count)
	copy(payload, data[RecordHeaderSize:RecordHeaderSize+count])

	return RecordType(data[3]), address, payload, nil
}

// merge sorts segments by address and joins the ones that touch.
func merge(segments []Segment) ([]Segment, error) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})

	var out []Segment
	for _, s := range segments {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if s.Address < last.End() {
				return nil, fmt.Errorf("overlapping data at 0x%08X", s.Address)
			}
			if s.Address == last.End() {
				last.Data = append(last.Data, s.Data...)
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// calculateChecksum computes the 8-bit checksum of a record.
// Uses basic summation with 2's complement.
func calculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1 // 2's complement
}
