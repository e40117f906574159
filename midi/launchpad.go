package midi

import (
	"errors"
	"fmt"

	"go-tonegen/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// LaunchpadController handles a Novation Launchpad X in programmer mode
type LaunchpadController struct {
	*inbox
	id       string
	outPort  drivers.Out
	inPort   drivers.In
	send     func(msg gomidi.Message) error
	stopFunc func()
}

// Launchpad X programmer mode SysEx bodies (F0/F7 added by gomidi)
var (
	sysexProgrammerMode = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}
	sysexBrightnessMax  = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}
	sysexLEDFeedback    = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01}
)

// padColor is one Launchpad X palette entry: velocity and its approximate RGB
type padColor struct {
	velocity uint8
	rgb      [3]uint8
}

var launchpadPalette = []padColor{
	{0, [3]uint8{0, 0, 0}},
	{5, [3]uint8{255, 0, 0}},
	{6, [3]uint8{255, 80, 80}},
	{7, [3]uint8{180, 60, 60}},
	{9, [3]uint8{255, 100, 0}},
	{11, [3]uint8{180, 80, 40}},
	{13, [3]uint8{255, 200, 0}},
	{17, [3]uint8{0, 180, 0}},
	{19, [3]uint8{0, 100, 0}},
	{21, [3]uint8{0, 255, 0}},
	{37, [3]uint8{0, 200, 200}},
	{43, [3]uint8{40, 60, 120}},
	{45, [3]uint8{0, 100, 255}},
	{47, [3]uint8{80, 150, 255}},
	{49, [3]uint8{150, 0, 200}},
	{53, [3]uint8{255, 80, 180}},
	{78, [3]uint8{100, 100, 255}},
	{84, [3]uint8{255, 150, 50}},
	{87, [3]uint8{150, 255, 100}},
	{97, [3]uint8{180, 180, 60}},
	{119, [3]uint8{255, 255, 255}},
}

// NewLaunchpadController opens the pad input and, when outPort is set,
// switches the device to programmer mode for LED output
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	lp := &LaunchpadController{
		inbox:   newInbox(),
		id:      id,
		inPort:  inPort,
		outPort: outPort,
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		lp.send = send

		// Pads only report presses in programmer mode
		for _, body := range [][]byte{sysexProgrammerMode, sysexBrightnessMax, sysexLEDFeedback} {
			if err := lp.send(gomidi.SysEx(body)); err != nil {
				return nil, fmt.Errorf("configure launchpad: %w", err)
			}
		}
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, lp.receive)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}

	return lp, nil
}

// receive runs on the driver's goroutine
func (lp *LaunchpadController) receive(msg gomidi.Message, timestampms int32) {
	ev, ok := decodePad(msg)
	if !ok {
		return
	}
	if !lp.pad(ev) {
		debug.Log("lp", "%s: dropped pad %d,%d on=%v", lp.id, ev.Row, ev.Col, ev.On)
	}
}

func (lp *LaunchpadController) ID() string {
	return lp.id
}

func (lp *LaunchpadController) Type() ControllerType {
	return ControllerLaunchpad
}

func (lp *LaunchpadController) PadEvents() <-chan PadEvent {
	return lp.padChan
}

func (lp *LaunchpadController) NoteEvents() <-chan NoteEvent {
	return lp.noteChan // stays empty; pads arrive as PadEvents
}

// SetLEDBatch sends one NoteOn per update. The channel picks static or pulsing.
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}

	var errs []error
	for _, u := range updates {
		msg := gomidi.NoteOn(u.Channel, rowColToNote(u.Row, u.Col), mapRGBToLaunchpad(u.Color))
		if err := lp.send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	debug.LogEvery(20, "lp-send", "batch of %d", len(updates))
	return errors.Join(errs...)
}

// mapRGBToLaunchpad finds the nearest palette velocity for an RGB value
func mapRGBToLaunchpad(rgb [3]uint8) uint8 {
	best := launchpadPalette[0].velocity
	bestDist := -1
	for _, p := range launchpadPalette {
		dist := 0
		for i := range rgb {
			d := int(rgb[i]) - int(p.rgb[i])
			dist += d * d
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = p.velocity
		}
	}
	return best
}

// clearAll turns off every pad and button
func clearAll() []LEDUpdate {
	var updates []LEDUpdate
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if row == 8 && col == 8 {
				continue // logo LED
			}
			updates = append(updates, LEDUpdate{Row: row, Col: col})
		}
	}
	return updates
}

func (lp *LaunchpadController) Close() error {
	err := lp.SetLEDBatch(clearAll())
	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	lp.close()
	return err
}

// Launchpad X programmer mode layout:
// rows 0-7 (bottom to top) are notes 11-18 ... 81-88, column 8 is the
// scene buttons (19, 29, ... 89) and row 8 is the top CC row 91-98.

func rowColToNote(row, col int) uint8 {
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

// ccToRowCol maps the top row buttons, which send CCs
func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}
