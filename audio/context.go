package audio

import (
	"errors"
	"math"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

var ErrTooManyOscillators = errors.New("no oscillator available")

// Context is the audio graph plus its clock. Time only moves when frames are
// rendered, so CurrentTime is monotonic and matches what has been heard.
type Context struct {
	mu             sync.Mutex
	cfg            core.ProcessorConfig
	frame          int64
	dest           *Gain
	oscillators    int
	maxOscillators int // 0 = unlimited
	ended          chan struct{}
	scratch        []float32
}

// NewContext creates a context. maxOscillators <= 0 means no limit.
func NewContext(maxOscillators int, opts ...core.ProcessorOption) *Context {
	c := &Context{
		cfg:            core.ApplyProcessorOptions(opts...),
		maxOscillators: maxOscillators,
		ended:          make(chan struct{}, 1),
	}
	c.dest = &Gain{gain: newParam(c, 0)}
	return c
}

// SampleRate returns frames per second
func (c *Context) SampleRate() float64 {
	return c.cfg.SampleRate
}

// BlockSize returns the preferred render block in frames
func (c *Context) BlockSize() int {
	return c.cfg.BlockSize
}

// CurrentTime returns the clock in seconds
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Context) now() float64 {
	return float64(c.frame) / c.cfg.SampleRate
}

// Destination is the master gain every voice ends up in
func (c *Context) Destination() *Gain {
	return c.dest
}

// Oscillators returns the number of allocated, undisposed oscillators
func (c *Context) Oscillators() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oscillators
}

// Ended fires (coalesced) when any oscillator passes its stop time
func (c *Context) Ended() <-chan struct{} {
	return c.ended
}

// NewOscillator allocates a sine oscillator at freq Hz
func (c *Context) NewOscillator(freq float64) (*Oscillator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxOscillators > 0 && c.oscillators >= c.maxOscillators {
		return nil, ErrTooManyOscillators
	}
	c.oscillators++
	o := &Oscillator{ctx: c, stop: math.Inf(1)}
	o.freq = newParam(c, freq)
	return o, nil
}

// NewGain creates a gain node with an initial value
func (c *Context) NewGain(v float64) *Gain {
	return &Gain{gain: newParam(c, v)}
}

// Connect routes src into dst. A node has one output, so an existing
// connection is replaced.
func (c *Context) Connect(src Node, dst *Gain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect(src)
	src.link().out = dst
	dst.inputs = append(dst.inputs, src)
}

// Disconnect removes src from whatever it feeds
func (c *Context) Disconnect(src Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect(src)
}

func (c *Context) disconnect(src Node) {
	l := src.link()
	if l.out != nil {
		l.out.remove(src)
		l.out = nil
	}
}

func (c *Context) notifyEnded() {
	select {
	case c.ended <- struct{}{}:
	default:
	}
}

// Render fills out with mono samples and advances the clock by len(out) frames
func (c *Context) Render(out []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sr := c.cfg.SampleRate
	c.dest.prune(c.now())
	for i := range out {
		t := float64(c.frame+int64(i)) / sr
		v := core.FlushDenormals(c.dest.sample(t, sr))
		out[i] = float32(core.Clamp(v, -1, 1))
	}
	c.frame += int64(len(out))
}

// Advance renders and discards the given amount of time, block by block
func (c *Context) Advance(seconds float64) {
	frames := int(math.Round(seconds * c.cfg.SampleRate))
	if frames <= 0 {
		return
	}
	if len(c.scratch) < c.cfg.BlockSize {
		c.scratch = make([]float32, c.cfg.BlockSize)
	}
	for frames > 0 {
		n := min(frames, len(c.scratch))
		c.Render(c.scratch[:n])
		frames -= n
	}
}
