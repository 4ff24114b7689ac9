// Package ihex parses Intel HEX firmware files into the data blocks a flash
// layout is built from.
//
// # Record Format
//
// Every record is one line of hex characters after a ':' start code:
//
//	:[ByteCount(2)][Address(4)][RecordType(2)][Data(2*ByteCount)][Checksum(2)]
//
// Example record:
//
//	:0400000001020304F2
//	  04 = Byte count
//	  0000 = Address (big-endian, offset from the current base)
//	  00 = Record type (data)
//	  01020304 = Data
//	  F2 = Checksum (two's complement of the sum of all other bytes)
//
// Supported record types are data (00), end of file (01), extended segment
// address (02), start segment address (03), extended linear address (04)
// and start linear address (05).
//
// # Usage
//
//	img, err := ihex.Parse("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b := layout.NewBuilder()
//	if err := img.AddTo(b); err != nil {
//	    log.Fatal(err)
//	}
//
// Contiguous data records are merged into segments. Overlapping records are
// an error.
package ihex
