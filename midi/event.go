package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// NoteEvent is sent when a note is played or released on a keyboard.
// A note-on with velocity 0 counts as a release.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
	On       bool
}

// PadEvent is sent when a pad/button is pressed or released on a grid controller
type PadEvent struct {
	Row, Col int
	Velocity uint8
	On       bool
}

// decodeNote turns a raw message into a NoteEvent, if it is one
func decodeNote(msg gomidi.Message) (NoteEvent, bool) {
	var channel, note, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &note, &velocity):
		return NoteEvent{Note: note, Velocity: velocity, Channel: channel, On: velocity > 0}, true
	case msg.GetNoteOff(&channel, &note, &velocity):
		return NoteEvent{Note: note, Velocity: velocity, Channel: channel}, true
	}
	return NoteEvent{}, false
}

// decodePad turns a Launchpad note or top-row CC into a PadEvent
func decodePad(msg gomidi.Message) (PadEvent, bool) {
	var channel, note, velocity, cc uint8
	switch {
	case msg.GetNoteOn(&channel, &note, &velocity):
	case msg.GetNoteOff(&channel, &note, &velocity):
		velocity = 0
	case msg.GetControlChange(&channel, &cc, &velocity):
		row, col := ccToRowCol(cc)
		if row < 0 {
			return PadEvent{}, false
		}
		return PadEvent{Row: row, Col: col, Velocity: velocity, On: velocity > 0}, true
	default:
		return PadEvent{}, false
	}

	row, col := noteToRowCol(note)
	if row < 0 {
		return PadEvent{}, false
	}
	return PadEvent{Row: row, Col: col, Velocity: velocity, On: velocity > 0}, true
}
