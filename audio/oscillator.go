package audio

import (
	"errors"
	"math"
	"sync/atomic"
)

var (
	ErrAlreadyStarted = errors.New("oscillator already started")
	ErrNotStarted     = errors.New("oscillator not started")
)

// Oscillator is a sine source with a scheduled start and stop.
// Once the renderer passes the stop time it is ended for good.
type Oscillator struct {
	nodeLink
	ctx      *Context
	freq     *Param
	phase    float64 // cycles, in [0,1)
	started  bool
	start    float64
	stop     float64
	ended    atomic.Bool
	disposed bool
}

// Frequency returns the frequency parameter (Hz)
func (o *Oscillator) Frequency() *Param {
	return o.freq
}

// Start schedules the oscillator to begin at t
func (o *Oscillator) Start(t float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true
	o.start = t
	return nil
}

// Stop schedules the oscillator to end at t, replacing any earlier stop
func (o *Oscillator) Stop(t float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if !o.started {
		return ErrNotStarted
	}
	if t < o.start {
		t = o.start
	}
	o.stop = t
	return nil
}

// CancelStop removes a pending stop. It fails once the oscillator has ended.
func (o *Oscillator) CancelStop() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.ended.Load() {
		return false
	}
	o.stop = math.Inf(1)
	return true
}

// Ended reports whether the renderer has passed the stop time
func (o *Oscillator) Ended() bool {
	return o.ended.Load()
}

// Dispose disconnects the oscillator and returns its slot to the context
func (o *Oscillator) Dispose() {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.disposed {
		return
	}
	o.disposed = true
	o.ctx.disconnect(o)
	o.ctx.oscillators--
}

func (o *Oscillator) sample(t, sampleRate float64) float64 {
	if !o.started || t < o.start || o.disposed {
		return 0
	}
	if t >= o.stop {
		if !o.ended.Load() {
			o.ended.Store(true)
			o.ctx.notifyEnded()
		}
		return 0
	}
	v := math.Sin(2 * math.Pi * o.phase)
	o.phase += o.freq.valueAt(t) / sampleRate
	o.phase -= math.Floor(o.phase)
	return v
}
