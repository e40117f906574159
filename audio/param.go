package audio

// EventKind says how a scheduled value is reached
type EventKind int

const (
	EventSetValue   EventKind = iota // jump at Time
	EventLinearRamp                  // ramp from the previous point, arriving at Time
)

func (k EventKind) String() string {
	switch k {
	case EventSetValue:
		return "set"
	case EventLinearRamp:
		return "ramp"
	}
	return "unknown"
}

// Event is one point on a Param's automation timeline
type Event struct {
	Kind  EventKind
	Value float64
	Time  float64 // seconds on the context clock
}

// Param is an automatable value sampled by the renderer. All methods take the
// owning context's lock, so scheduling from the control goroutine is safe
// while audio is rendering.
type Param struct {
	ctx       *Context
	value     float64 // value before the first event
	valueTime float64
	events    []Event // sorted by Time
}

func newParam(ctx *Context, v float64) *Param {
	return &Param{ctx: ctx, value: v}
}

// Value returns the value at the context's current time
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(p.ctx.now())
}

// ValueAt returns the value the timeline produces at t
func (p *Param) ValueAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(t)
}

// SetValueAtTime schedules a jump to v at t
func (p *Param) SetValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insert(Event{Kind: EventSetValue, Value: v, Time: t})
}

// LinearRampToValueAtTime schedules a linear ramp from the previous point to v, ending at t
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insert(Event{Kind: EventLinearRamp, Value: v, Time: t})
}

// CancelScheduledValues drops every event at or after t
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.cancelFrom(t)
}

// HoldAt samples the value at t, cancels everything from t on and pins the
// sampled value at t. The three steps happen under one lock so the renderer
// never sees the timeline half-cancelled. Returns the sampled value.
func (p *Param) HoldAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	v := p.valueAt(t)
	p.cancelFrom(t)
	p.insert(Event{Kind: EventSetValue, Value: v, Time: t})
	return v
}

// Ramp is a linear ramp target
type Ramp struct {
	Value float64
	Time  float64
}

// Reschedule is HoldAt(t) followed by the given linear ramps, all in one step,
// so chained ramps land relative to the same t.
func (p *Param) Reschedule(t float64, ramps ...Ramp) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	v := p.valueAt(t)
	p.cancelFrom(t)
	p.insert(Event{Kind: EventSetValue, Value: v, Time: t})
	for _, r := range ramps {
		p.insert(Event{Kind: EventLinearRamp, Value: r.Value, Time: r.Time})
	}
	return v
}

// Events returns a copy of the pending timeline
func (p *Param) Events() []Event {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *Param) insert(e Event) {
	i := len(p.events)
	for i > 0 && p.events[i-1].Time > e.Time {
		i--
	}
	p.events = append(p.events, Event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) cancelFrom(t float64) {
	for i, e := range p.events {
		if e.Time >= t {
			p.events = p.events[:i]
			return
		}
	}
}

// lastAt returns the index of the last event with Time <= t, or -1
func (p *Param) lastAt(t float64) int {
	prev := -1
	for i, e := range p.events {
		if e.Time > t {
			break
		}
		prev = i
	}
	return prev
}

func (p *Param) valueAt(t float64) float64 {
	prev := p.lastAt(t)

	startV, startT := p.value, p.valueTime
	if prev >= 0 {
		startV, startT = p.events[prev].Value, p.events[prev].Time
	}

	if prev+1 < len(p.events) {
		next := p.events[prev+1]
		if next.Kind == EventLinearRamp && next.Time > startT && t >= startT {
			frac := (t - startT) / (next.Time - startT)
			return startV + (next.Value-startV)*frac
		}
	}
	return startV
}

// prune folds elapsed events so the timeline does not grow without bound.
// The last elapsed event is kept as the anchor of any ramp still in flight.
func (p *Param) prune(t float64) {
	prev := p.lastAt(t)
	if prev < 0 {
		return
	}
	if prev == len(p.events)-1 {
		p.value, p.valueTime = p.events[prev].Value, p.events[prev].Time
		p.events = p.events[:0]
		return
	}
	if prev > 0 {
		p.events = append(p.events[:0], p.events[prev:]...)
	}
}
