package algorithm

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default values applied to raw algorithms that omit them.
const (
	// DefaultStackSize is the algorithm stack size in bytes when none is declared.
	DefaultStackSize = 512

	// DefaultProgramPageTimeout is the page program timeout in milliseconds.
	DefaultProgramPageTimeout = 1000

	// DefaultEraseSectorTimeout is the sector erase timeout in milliseconds.
	DefaultEraseSectorTimeout = 2000
)

// Parse parses a target description file from the given path.
//
// Example:
//
//	desc, err := algorithm.Parse("nrf52840.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	raw, err := desc.DefaultAlgorithm()
func Parse(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader parses a target description from any io.Reader.
//
// Example:
//
//	desc, err := algorithm.ParseReader(strings.NewReader(yamlContent))
func ParseReader(r io.Reader) (*Description, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read description")
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, errors.New("empty description")
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var desc Description
	if err := dec.Decode(&desc); err != nil {
		return nil, errors.Wrap(err, "failed to decode description")
	}

	if desc.Name == "" {
		return nil, errors.New("description has no name")
	}
	if len(desc.FlashAlgorithms) == 0 {
		return nil, errors.Errorf("target %q declares no flash algorithms", desc.Name)
	}

	for i, raw := range desc.FlashAlgorithms {
		if err := validateRaw(raw); err != nil {
			return nil, errors.Wrapf(err, "flash algorithm %d", i)
		}
		applyDefaults(raw)
	}

	return &desc, nil
}

// validateRaw checks the fields every raw algorithm must carry.
func validateRaw(raw *RawAlgorithm) error {
	if raw == nil {
		return errors.New("empty algorithm entry")
	}
	if raw.Name == "" {
		return errors.New("algorithm has no name")
	}
	if len(raw.Instructions) == 0 {
		return errors.Errorf("algorithm %q has no instructions", raw.Name)
	}

	props := raw.FlashProperties
	if props.PageSize == 0 {
		return errors.Errorf("algorithm %q: page_size must be greater than zero", raw.Name)
	}
	if props.AddressRange.Size() == 0 {
		return errors.Errorf("algorithm %q: empty address_range %s", raw.Name, props.AddressRange)
	}
	if len(props.Sectors) == 0 {
		return errors.Errorf("algorithm %q declares no sectors", raw.Name)
	}

	var last uint64
	for i, s := range props.Sectors {
		if s.Size == 0 {
			return errors.Errorf("algorithm %q: sector description %d has zero size", raw.Name, i)
		}
		if i > 0 && s.Address <= last {
			return errors.Errorf("algorithm %q: sector descriptions are not sorted at %d", raw.Name, i)
		}
		last = s.Address
	}

	return nil
}

// applyDefaults fills in optional fields left out of the description.
func applyDefaults(raw *RawAlgorithm) {
	if raw.StackSize == nil {
		size := uint64(DefaultStackSize)
		raw.StackSize = &size
	}
	if raw.StackOverflowCheck == nil {
		check := true
		raw.StackOverflowCheck = &check
	}
	if raw.FlashProperties.ProgramPageTimeout == 0 {
		raw.FlashProperties.ProgramPageTimeout = DefaultProgramPageTimeout
	}
	if raw.FlashProperties.EraseSectorTimeout == 0 {
		raw.FlashProperties.EraseSectorTimeout = DefaultEraseSectorTimeout
	}
}
