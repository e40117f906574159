package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cwbudde/algo-dsp/dsp/core"
)

const cellWidth = 6

// Key is one keyboard cell as the view sees it
type Key struct {
	Binding string // computer key, may be empty
	Name    string // note name
	Freq    float64
	Black   bool
	Symbol  rune
	Color   lipgloss.Color
}

// RenderKeyboard draws accidentals on the upper line and naturals on the
// lower one, with note names and frequencies underneath.
func RenderKeyboard(keys []Key, dim lipgloss.Color) string {
	var top, bottom, names, freqs strings.Builder
	cell := lipgloss.NewStyle().Width(cellWidth).Align(lipgloss.Center)
	label := cell.Foreground(dim)

	for _, k := range keys {
		sym := cell.Foreground(k.Color).Render(fmt.Sprintf("%s %c", k.Binding, k.Symbol))
		blank := cell.Render("")
		if k.Black {
			top.WriteString(sym)
			bottom.WriteString(blank)
		} else {
			top.WriteString(blank)
			bottom.WriteString(sym)
		}
		names.WriteString(label.Render(k.Name))
		freqs.WriteString(label.Render(fmt.Sprintf("%.0f", k.Freq)))
	}
	return strings.Join([]string{top.String(), bottom.String(), names.String(), freqs.String()}, "\n")
}

// RenderMeter draws a horizontal level bar for db within [min, max]
func RenderMeter(db, min, max float64, width int, full, empty rune) string {
	if width <= 0 || max <= min {
		return ""
	}
	frac := core.Clamp((db-min)/(max-min), 0, 1)
	n := int(frac*float64(width) + 0.5)
	return strings.Repeat(string(full), n) + strings.Repeat(string(empty), width-n)
}
