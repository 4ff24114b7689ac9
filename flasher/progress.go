package flasher

import "time"

// progress tracks the current phase and turns phase events into Progress
// reports for the configured callback.
type progress struct {
	callback ProgressCallback

	phase      Phase
	started    time.Time
	units      int
	totalUnits int
	bytes      uint64
	totalBytes uint64
}

func newProgress(callback ProgressCallback) *progress {
	return &progress{callback: callback}
}

func (p *progress) start(phase Phase, units int, bytes uint64) {
	p.phase = phase
	p.started = time.Now()
	p.units = 0
	p.totalUnits = units
	p.bytes = 0
	p.totalBytes = bytes

	p.report(Progress{Event: EventStarted})
}

// unit records one completed sector, fill or page.
func (p *progress) unit(size uint64, took time.Duration) {
	p.units++
	p.bytes += size

	p.report(Progress{
		Event:    EventProgress,
		Size:     size,
		Duration: took,
	})
}

// done ends the current phase, successfully when err is nil.
func (p *progress) done(err error) {
	if err != nil {
		p.report(Progress{Event: EventFailed, Err: err})
		return
	}
	p.report(Progress{Event: EventFinished, Percentage: 100})
}

func (p *progress) message(text string) {
	p.report(Progress{Event: EventMessage, Message: text})
}

func (p *progress) report(pr Progress) {
	if p.callback == nil {
		return
	}

	pr.Phase = p.phase
	pr.Units = p.units
	pr.TotalUnits = p.totalUnits
	pr.Bytes = p.bytes
	pr.TotalBytes = p.totalBytes
	if !p.started.IsZero() {
		pr.ElapsedTime = time.Since(p.started)
	}
	if pr.Percentage == 0 && p.totalBytes > 0 {
		pr.Percentage = float64(p.bytes) / float64(p.totalBytes) * 100
		if pr.Percentage > 100 {
			pr.Percentage = 100
		}
	}

	p.callback(pr)
}
