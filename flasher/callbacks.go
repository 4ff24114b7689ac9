package flasher

import "time"

// Phase is one of the independently observable parts of a flash operation.
type Phase string

const (
	PhaseErasing     Phase = "erasing"
	PhaseFilling     Phase = "filling"
	PhaseProgramming Phase = "programming"
	PhaseVerifying   Phase = "verifying"

	PhaseBlankChecking Phase = "blank checking"
)

// Event is the kind of a progress report.
type Event string

const (
	// EventStarted is sent once when a phase begins.
	EventStarted Event = "started"

	// EventProgress is sent for every completed unit of work: an erased
	// sector, a filled gap, a programmed or verified page.
	EventProgress Event = "progress"

	// EventFinished is sent when a phase completed successfully.
	EventFinished Event = "finished"

	// EventFailed is sent when a phase ended with an error.
	EventFailed Event = "failed"

	// EventMessage carries diagnostic text printed by the flash algorithm
	// over RTT.
	EventMessage Event = "message"
)

// Progress contains information about the progress of a flash operation.
// Passed to ProgressCallback.
type Progress struct {
	Phase Phase
	Event Event

	// Size is the number of bytes of the unit that was completed
	// (EventProgress only).
	Size uint64

	// Duration is the time the completed unit took (EventProgress only).
	Duration time.Duration

	// Units and TotalUnits count the sectors, fills or pages of the phase.
	Units      int
	TotalUnits int

	// Bytes and TotalBytes count the bytes processed in the phase.
	Bytes      uint64
	TotalBytes uint64

	// Percentage is the completion percentage of the phase (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time since the phase started
	ElapsedTime time.Duration

	// Message is the text received from the algorithm (EventMessage only).
	Message string

	// Err is the error that ended the phase (EventFailed only).
	Err error
}

// ProgressCallback is called during flash operations to report progress.
// Implementations should return quickly: the callback runs on the goroutine
// that polls the target.
//
// Example:
//
//	f := flasher.New(session, img,
//	    flasher.WithProgressCallback(func(p flasher.Progress) {
//	        if p.Event == flasher.EventProgress {
//	            fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	        }
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the flasher.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	f := flasher.New(session, img, flasher.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// LevelLogger is implemented by loggers that can tell whether debug output
// is enabled. The flasher reads every written call register back from the
// core and logs it when debug output is on.
type LevelLogger interface {
	Logger
	DebugEnabled() bool
}
