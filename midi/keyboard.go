package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-tonegen/debug"
)

// KeyboardController handles a standard MIDI keyboard
type KeyboardController struct {
	*inbox
	id       string
	inPort   drivers.In
	channel  int // 0-15, or -1 for omni
	stopFunc func()
}

// NewKeyboardController creates a keyboard controller (input only).
// channel filters incoming notes; -1 accepts every channel.
func NewKeyboardController(id string, inPort drivers.In, channel int) (*KeyboardController, error) {
	kb := &KeyboardController{
		inbox:   newInbox(),
		id:      id,
		inPort:  inPort,
		channel: channel,
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, kb.receive)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		kb.stopFunc = stop
	}

	return kb, nil
}

// receive runs on the driver's goroutine
func (kb *KeyboardController) receive(msg gomidi.Message, timestampms int32) {
	ev, ok := decodeNote(msg)
	if !ok || !kb.accepts(ev.Channel) {
		return
	}
	if !kb.note(ev) {
		debug.Log("kbd", "%s: dropped note=%d on=%v", kb.id, ev.Note, ev.On)
	}
}

func (kb *KeyboardController) accepts(channel uint8) bool {
	return kb.channel < 0 || int(channel) == kb.channel
}

func (kb *KeyboardController) ID() string {
	return kb.id
}

func (kb *KeyboardController) Type() ControllerType {
	return ControllerKeyboard
}

func (kb *KeyboardController) PadEvents() <-chan PadEvent {
	return kb.padChan // Keyboards don't have pads
}

func (kb *KeyboardController) NoteEvents() <-chan NoteEvent {
	return kb.noteChan
}

// SetLEDBatch is a no-op for keyboards
func (kb *KeyboardController) SetLEDBatch(updates []LEDUpdate) error {
	return nil
}

func (kb *KeyboardController) Close() error {
	if kb.stopFunc != nil {
		kb.stopFunc()
	}
	kb.close()
	return nil
}
