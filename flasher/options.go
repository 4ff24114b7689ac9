package flasher

import (
	"time"

	"github.com/moffa90/go-flashalgo/rtt"
)

// Config holds the flasher configuration.
type Config struct {
	// ProgressCallback is called during flash operations to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// CoreIndex selects the core of the session that runs the algorithm
	CoreIndex int

	// Clock is the flash clock in Hz passed to the algorithm's Init routine.
	// Zero lets the algorithm pick its default.
	Clock uint32

	// RestoreUnwrittenBytes reads the bytes of every touched page that are
	// not written and writes them back after the erase
	RestoreUnwrittenBytes bool

	// DoubleBuffering overlaps the transfer of the next page with the
	// programming of the current one when the algorithm has two buffers
	DoubleBuffering bool

	// SkipErase skips the sector erase step of Program, for example after a
	// chip erase
	SkipErase bool

	// Verify verifies the written data at the end of Program
	Verify bool

	// PollInterval is the sleep between two core status polls
	PollInterval time.Duration

	// AttachRTT attaches to the algorithm's RTT control block (optional)
	AttachRTT rtt.AttachFunc
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		DoubleBuffering: true,
		PollInterval:    time.Millisecond,
	}
}

// Option is a functional option for configuring the Flasher.
type Option func(*Config)

// WithProgressCallback sets a callback function to track flash progress.
//
// Example:
//
//	f := flasher.New(session, img,
//	    flasher.WithProgressCallback(func(p flasher.Progress) {
//	        fmt.Printf("%s: %.1f%% complete\n", p.Phase, p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the flasher operations.
//
// Example:
//
//	f := flasher.New(session, img, flasher.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithCoreIndex selects the core that runs the flash algorithm.
// Default is 0.
func WithCoreIndex(index int) Option {
	return func(c *Config) {
		if index >= 0 {
			c.CoreIndex = index
		}
	}
}

// WithClock sets the flash clock passed to the algorithm's Init routine.
//
// Example:
//
//	f := flasher.New(session, img, flasher.WithClock(48_000_000))
func WithClock(hz uint32) Option {
	return func(c *Config) {
		c.Clock = hz
	}
}

// WithRestoreUnwrittenBytes enables or disables restoring the bytes of a
// sector that are erased but not written. Default is false.
func WithRestoreUnwrittenBytes(restore bool) Option {
	return func(c *Config) {
		c.RestoreUnwrittenBytes = restore
	}
}

// WithDoubleBuffering enables or disables double buffered programming.
// It only takes effect when the algorithm declares two page buffers.
// Default is true.
//
// Example:
//
//	f := flasher.New(session, img, flasher.WithDoubleBuffering(false))
func WithDoubleBuffering(enable bool) Option {
	return func(c *Config) {
		c.DoubleBuffering = enable
	}
}

// WithSkipErase makes Program write without erasing sectors first.
// Default is false.
func WithSkipErase(skip bool) Option {
	return func(c *Config) {
		c.SkipErase = skip
	}
}

// WithVerify enables or disables verification at the end of Program.
// Default is false.
//
// Example:
//
//	f := flasher.New(session, img, flasher.WithVerify(true))
func WithVerify(verify bool) Option {
	return func(c *Config) {
		c.Verify = verify
	}
}

// WithPollInterval sets the sleep between two core status polls while a
// routine runs. Default is 1ms.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.PollInterval = interval
		}
	}
}

// WithRTT sets the function used to attach to the flash algorithm's RTT
// control block. Text the algorithm prints is forwarded to the progress
// callback as EventMessage.
//
// Example:
//
//	f := flasher.New(session, img, flasher.WithRTT(myprobe.AttachRTT))
func WithRTT(attach rtt.AttachFunc) Option {
	return func(c *Config) {
		c.AttachRTT = attach
	}
}
