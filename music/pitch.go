package music

import (
	"fmt"
	"math"
)

// ReferenceNote is the note index the tuning reference is pinned to (A4)
const ReferenceNote = 69

// NoteToFrequency converts a (possibly fractional) note index to Hz.
// Non-finite input comes back non-finite.
func NoteToFrequency(note float64, t Tuning) float64 {
	return t.Reference * math.Pow(2, (note-ReferenceNote)/12)
}

// FrequencyToNote converts Hz to a fractional note index.
// freq <= 0 gives NaN or -Inf; callers guard.
func FrequencyToNote(freq float64, t Tuning) float64 {
	return math.Log2(freq/t.Reference)*12 + ReferenceNote
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName converts a note index to a readable name (e.g., "C4", "F#3")
func NoteName(note int) string {
	pc := ((note % 12) + 12) % 12
	octave := floorDiv(note, 12) - 1
	return fmt.Sprintf("%s%d", noteNames[pc], octave)
}

// IsAccidental reports whether the note falls on a black key
func IsAccidental(note int) bool {
	return len(noteNames[((note%12)+12)%12]) > 1
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
