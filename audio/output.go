package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"go-tonegen/debug"
)

// Output drives a Context's clock by pulling rendered audio
type Output interface {
	Start() error
	Close() error
}

// OtoOutput plays the context through the system audio device
type OtoOutput struct {
	ctx     *Context
	otoCtx  *oto.Context
	player  *oto.Player
	buf     []float32
	started bool
	mu      sync.Mutex // setup/teardown only; Read runs on oto's goroutine
}

// NewOtoOutput opens the audio device for mono float32 at the context's rate
func NewOtoOutput(ctx *Context) (*OtoOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   int(ctx.SampleRate()),
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   blockDuration(ctx),
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	return &OtoOutput{
		ctx:    ctx,
		otoCtx: otoCtx,
		buf:    make([]float32, ctx.BlockSize()),
	}, nil
}

// Read implements io.Reader for the oto player
func (op *OtoOutput) Read(p []byte) (int, error) {
	n := len(p) / 4
	if len(op.buf) < n {
		op.buf = make([]float32, n)
	}
	samples := op.buf[:n]
	op.ctx.Render(samples)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return n * 4, nil
}

func (op *OtoOutput) Start() error {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.started {
		return nil
	}
	op.player = op.otoCtx.NewPlayer(op)
	op.player.Play()
	op.started = true
	debug.Log("audio", "oto output started: %.0f Hz, block %d", op.ctx.SampleRate(), op.ctx.BlockSize())
	return nil
}

func (op *OtoOutput) Close() error {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.player == nil {
		return nil
	}
	err := op.player.Close()
	op.player = nil
	op.started = false
	debug.Log("audio", "oto output closed")
	return err
}

// HeadlessOutput advances the clock in real time without a device.
// Used with --headless and on machines with no audio.
type HeadlessOutput struct {
	ctx      *Context
	stopChan chan struct{}
	done     chan struct{}
	mu       sync.Mutex
}

func NewHeadlessOutput(ctx *Context) *HeadlessOutput {
	return &HeadlessOutput{ctx: ctx}
}

func (h *HeadlessOutput) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopChan != nil {
		return nil
	}
	h.stopChan = make(chan struct{})
	h.done = make(chan struct{})
	go h.run(h.stopChan, h.done)
	debug.Log("audio", "headless output started")
	return nil
}

func (h *HeadlessOutput) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(blockDuration(h.ctx))
	defer ticker.Stop()

	// Track wall time from a fixed origin so frame rounding does not drift
	origin := time.Now()
	base := h.ctx.CurrentTime()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			target := base + now.Sub(origin).Seconds()
			h.ctx.Advance(target - h.ctx.CurrentTime())
		}
	}
}

func (h *HeadlessOutput) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopChan == nil {
		return nil
	}
	close(h.stopChan)
	<-h.done
	h.stopChan = nil
	debug.Log("audio", "headless output closed")
	return nil
}

func blockDuration(ctx *Context) time.Duration {
	return time.Duration(float64(ctx.BlockSize()) / ctx.SampleRate() * float64(time.Second))
}
