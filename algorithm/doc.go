// Package algorithm provides flash algorithm descriptions and their assembly
// into a loadable Image.
//
// # Description Format
//
// Target descriptions are YAML documents in the style of probe-rs target files:
//
//	name: nRF52840_xxAA
//	memory_map:
//	  - !Nvm
//	    range: { start: 0x0, end: 0x100000 }
//	  - !Ram
//	    range: { start: 0x20000000, end: 0x20040000 }
//	flash_algorithms:
//	  - name: nrf52
//	    default: true
//	    instructions: 8LUAIAcm...   # base64 machine code
//	    pc_init: 0x1
//	    pc_uninit: 0x5d
//	    pc_program_page: 0xbd
//	    pc_erase_sector: 0x8d
//	    pc_erase_all: 0x61
//	    data_section_offset: 0x1d4
//	    transfer_encoding: raw
//	    flash_properties:
//	      address_range: { start: 0x0, end: 0x100000 }
//	      page_size: 0x1000
//	      erased_byte_value: 0xff
//	      program_page_timeout: 1000
//	      erase_sector_timeout: 2000
//	      sectors:
//	        - { size: 0x1000, address: 0x0 }
//
// Routine addresses (pc_*) are offsets from the start of the code. Optional
// routines may be omitted; the flasher falls back to plain memory access
// where one exists.
//
// # Usage
//
//	desc, err := algorithm.Parse("nrf52840.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	raw, _ := desc.DefaultAlgorithm()
//	ram, _ := desc.RAMRegion()
//
//	img, err := algorithm.Assemble(raw, ram.Range, target.Thumb2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("algorithm %s (%s), %d page buffers\n",
//	    img.Name, img.Fingerprint(), len(img.PageBuffers))
//
// # Error Handling
//
// Parse and Assemble return errors annotated with the failing algorithm and,
// where available, the YAML line. This package wraps with github.com/pkg/errors
// so decode failures carry a stack trace (print them with %+v). The other
// packages of the module wrap with fmt.Errorf and %w. Both forms work with
// errors.Is, errors.As and errors.Unwrap.
package algorithm
