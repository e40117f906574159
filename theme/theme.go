package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"go-tonegen/synth"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Launchpad help widget
	Solid rune // ■ active/has function
	Empty rune // □ inactive/no function

	// Key states
	KeyIdle    rune // · silent
	KeyAttack  rune // ▲ rising
	KeyDecay   rune // ▼ falling to sustain
	KeySustain rune // ● holding
	KeyRelease rune // ○ fading out

	// Level meter
	MeterFull  rune
	MeterEmpty rune
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Default()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Solid: '■',
			Empty: '□',

			KeyIdle:    '·',
			KeyAttack:  '▲',
			KeyDecay:   '▼',
			KeySustain: '●',
			KeyRelease: '○',

			MeterFull:  '█',
			MeterEmpty: '░',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0 // deep purple
	RoleSurface = 0.1 // dark purple
	RoleMuted   = 0.2 // purple-magenta
	RoleFG      = 0.4 // pink-purple (readable)
	RoleAccent  = 0.5 // vivid magenta
	RoleCursor  = 0.6 // rose pink
	RoleActive  = 0.7 // soft red
	RoleWarning = 0.8 // orange
	RoleSuccess = 1.0 // bright yellow
)

// stage -> palette position; idle keys sit at the surface colour
var stageRoles = map[synth.Stage]float64{
	synth.StageIdle:       RoleSurface,
	synth.StageAttacking:  RoleSuccess,
	synth.StageDecaying:   RoleWarning,
	synth.StageSustaining: RoleActive,
	synth.StageReleasing:  RoleMuted,
	synth.StageTerminated: RoleSurface,
}

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

// StageRGB is the pad colour for a key in stage s
func (t *Theme) StageRGB(s synth.Stage) RGB {
	role, ok := stageRoles[s]
	if !ok {
		role = RoleSurface
	}
	return t.Palette.Lookup(role)
}

// StageColor is StageRGB for the terminal
func (t *Theme) StageColor(s synth.Stage) lipgloss.Color {
	return rgbToLipgloss(t.StageRGB(s))
}

// LEDColor adapts StageRGB to Engine.SetLEDColors
func (t *Theme) LEDColor(s synth.Stage) [3]uint8 {
	if !s.Sounding() {
		return t.StageRGB(s).Scale(0.3)
	}
	return t.StageRGB(s)
}

// StageSymbol is the glyph drawn under a key
func (t *Theme) StageSymbol(s synth.Stage) rune {
	switch s {
	case synth.StageAttacking:
		return t.Symbols.KeyAttack
	case synth.StageDecaying:
		return t.Symbols.KeyDecay
	case synth.StageSustaining:
		return t.Symbols.KeySustain
	case synth.StageReleasing:
		return t.Symbols.KeyRelease
	}
	return t.Symbols.KeyIdle
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
