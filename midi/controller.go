package midi

import "sync"

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerKeyboard
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerKeyboard:
		return "keyboard"
	}
	return "unknown"
}

// LEDUpdate is one pad colour change
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8 // RGB; the controller maps it to its palette
	Channel  uint8    // ChannelStatic or ChannelPulse
}

// Controller is the interface for MIDI input devices
type Controller interface {
	ID() string
	Type() ControllerType

	// Input events from the controller
	PadEvents() <-chan PadEvent   // For grid controllers (Launchpad)
	NoteEvents() <-chan NoteEvent // For keyboards

	// Output to the controller
	SetLEDBatch(updates []LEDUpdate) error

	// Lifecycle
	Close() error
}

// LED channel modes (LEDUpdate.Channel)
const (
	ChannelStatic uint8 = 0 // solid color
	ChannelPulse  uint8 = 2 // pulsing (fades)
)

// inbox holds a controller's event channels. The MIDI driver calls in from
// its own goroutine, so sends and close share a lock and sends after close
// are dropped.
type inbox struct {
	mu       sync.Mutex
	closed   bool
	padChan  chan PadEvent
	noteChan chan NoteEvent
}

func newInbox() *inbox {
	return &inbox{
		padChan:  make(chan PadEvent, 32),
		noteChan: make(chan NoteEvent, 32),
	}
}

// note queues ev; false when the queue is full or closed
func (b *inbox) note(ev NoteEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.noteChan <- ev:
		return true
	default:
		return false
	}
}

// pad queues ev; false when the queue is full or closed
func (b *inbox) pad(ev PadEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.padChan <- ev:
		return true
	default:
		return false
	}
}

func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.padChan)
	close(b.noteChan)
}
