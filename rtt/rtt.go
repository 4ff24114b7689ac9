// Package rtt defines the read side of Real-Time Transfer as used while a
// flash algorithm routine is executing.
//
// Control block discovery and ring buffer framing are provided by the caller
// through an AttachFunc. The flasher only polls up channels and forwards
// whatever text they yield.
package rtt

import (
	"context"
	"errors"
	"time"

	"github.com/moffa90/go-flashalgo/target"
)

// ErrNoControlBlock is returned by an AttachFunc when no control block is
// present at the requested location. Callers treat it as "RTT not in use".
var ErrNoControlBlock = errors.New("rtt: no control block found")

// Channel is a target-to-host ring buffer.
type Channel interface {
	// Name returns the channel name, or "" if the target did not set one.
	Name() string

	// BufferSize returns the capacity of the ring buffer in bytes.
	BufferSize() int

	// Read copies available bytes into buf without blocking and returns the
	// number of bytes read.
	Read(ctx context.Context, buf []byte) (int, error)
}

// Reader gives access to the up channels of an attached control block.
type Reader interface {
	UpChannels() []Channel
}

// AttachFunc attaches to the control block at the given address of core.
type AttachFunc func(ctx context.Context, core target.Core, controlBlock uint64, timeout time.Duration) (Reader, error)

// ChannelName returns the channel name or "unnamed".
func ChannelName(ch Channel) string {
	if name := ch.Name(); name != "" {
		return name
	}
	return "unnamed"
}
