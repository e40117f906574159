package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-tonegen/config"
	"go-tonegen/debug"
	"go-tonegen/midi"
	"go-tonegen/music"
	"go-tonegen/synth"
	"go-tonegen/theme"
	"go-tonegen/widgets"
)

// Bindings is the computer keyboard row, one entry per key id
var Bindings = []string{"a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j", "k"}

type Model struct {
	Engine     *synth.Engine
	DeviceMgr  *midi.DeviceManager // nil when MIDI is off
	Theme      *theme.Theme
	Config     *config.Config
	ConfigPath string

	hold     time.Duration
	held     map[int]int // key id -> repeat generation
	gen      int
	devices  map[string]midi.ControllerType
	status   string
	quitting bool
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

// holdExpiredMsg fires hold after a key's latest repeat
type holdExpiredMsg struct {
	key, gen int
}

func NewModel(engine *synth.Engine, deviceMgr *midi.DeviceManager, th *theme.Theme, cfg *config.Config, cfgPath string) Model {
	return Model{
		Engine:     engine,
		DeviceMgr:  deviceMgr,
		Theme:      th,
		Config:     cfg,
		ConfigPath: cfgPath,
		hold:       time.Duration(cfg.Keyboard.HoldMs) * time.Millisecond,
		held:       make(map[int]int),
		devices:    make(map[string]midi.ControllerType),
	}
}

func ListenForUpdates(engine *synth.Engine) tea.Cmd {
	return func() tea.Msg {
		<-engine.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	if deviceMgr == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Engine),
		ListenForDevices(m.DeviceMgr),
	)
}

func bindingKey(s string) int {
	for i, b := range Bindings {
		if b == s {
			return i
		}
	}
	return -1
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case holdExpiredMsg:
		if gen, ok := m.held[msg.key]; ok && gen == msg.gen {
			delete(m.held, msg.key)
			m.Engine.KeyUp(msg.key)
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Engine)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		switch event.Type {
		case midi.DeviceConnected:
			m.devices[event.ID] = event.Controller.Type()
			m.Engine.Attach(event.Controller)
			m.status = "connected " + event.ID
		case midi.DeviceDisconnected:
			delete(m.devices, event.ID)
			m.Engine.Detach(event.ID)
			m.status = "disconnected " + event.ID
		}
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(s string) (tea.Model, tea.Cmd) {
	if key := bindingKey(s); key >= 0 {
		// terminals send no key-up; auto-repeat keeps the key held
		if _, down := m.held[key]; !down {
			m.Engine.KeyDown(key)
		}
		m.gen++
		m.held[key] = m.gen
		msg := holdExpiredMsg{key: key, gen: m.gen}
		return m, tea.Tick(m.hold, func(time.Time) tea.Msg { return msg })
	}

	switch s {
	case "q", "ctrl+c":
		m.quitting = true
		m.Engine.ReleaseAll()
		if err := m.save(); err != nil {
			debug.Log("tui", "save config: %v", err)
		}
		return m, tea.Quit

	case " ", "space":
		m.Engine.ReleaseAll()
		clear(m.held)

	case "+", "=":
		m.Engine.SetVolumeDB(m.Engine.VolumeDB() + 1)

	case "-", "_":
		m.Engine.SetVolumeDB(m.Engine.VolumeDB() - 1)

	case "]":
		m.retune(1)

	case "[":
		m.retune(-1)

	case "x":
		m.Engine.ShiftOctave(1)

	case "z":
		m.Engine.ShiftOctave(-1)
	}
	return m, nil
}

func (m *Model) retune(delta float64) {
	if err := m.Engine.SetTuning(m.Engine.Tuning() + delta); err != nil {
		m.status = err.Error()
	}
}

// save copies the live settings into the config and writes it
func (m Model) save() error {
	s := m.Engine.Snapshot()
	m.Config.Tuning.Reference = s.Tuning
	m.Config.Master.VolumeDB = s.VolumeDB
	m.Config.Keyboard.BaseNote = s.BaseNote
	return m.Config.Save(m.ConfigPath)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.Engine.Snapshot()
	th := m.Theme

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(th.FG())

	header := headerStyle.Render(fmt.Sprintf("go-tonegen  A4=%.1fHz  %s..%s  %s",
		s.Tuning, music.NoteName(s.BaseNote), music.NoteName(s.BaseNote+len(s.Keys)-1), s.Policy))

	meter := fgStyle.Render(fmt.Sprintf("vol %6.1f dBFS ", s.VolumeDB)) +
		lipgloss.NewStyle().Foreground(th.Warning()).Render(
			widgets.RenderMeter(s.VolumeDB, synth.MinVolumeDB, synth.MaxVolumeDB, 30, th.Symbols.MeterFull, th.Symbols.MeterEmpty))

	voices := fgStyle.Render(fmt.Sprintf("voices %d  retired %d", s.Active, s.Retired))

	keys := make([]widgets.Key, len(s.Keys))
	for i, k := range s.Keys {
		binding := ""
		if i < len(Bindings) {
			binding = Bindings[i]
		}
		keys[i] = widgets.Key{
			Binding: binding,
			Name:    music.NoteName(k.Note),
			Freq:    k.Frequency,
			Black:   music.IsAccidental(k.Note),
			Symbol:  th.StageSymbol(k.Stage),
			Color:   th.StageColor(k.Stage),
		}
	}
	keyboard := widgets.RenderKeyboard(keys, th.Muted())

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(meter)
	out.WriteString("\n")
	out.WriteString(voices)
	out.WriteString("\n\n")
	out.WriteString(keyboard)
	out.WriteString("\n\n")

	if pads := m.padView(s); pads != "" {
		out.WriteString(pads)
		out.WriteString("\n\n")
	}

	out.WriteString(m.legend())
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render(m.devicesLine()))
	out.WriteString("\n")
	if m.status != "" {
		out.WriteString(dimStyle.Render(m.status))
		out.WriteString("\n")
	}
	out.WriteString(dimStyle.Render("a-k:play  space:release all  z/x:octave  +/-:volume  [/]:tuning  q:quit"))

	return out.String()
}

// padView mirrors the Launchpad when one is connected
func (m Model) padView(s synth.State) string {
	hasPad := false
	for _, t := range m.devices {
		if t == midi.ControllerLaunchpad {
			hasPad = true
		}
	}
	if !hasPad || len(s.Keys) == 0 {
		return ""
	}
	var grid [8][8][3]uint8
	lastRow := 0
	for _, k := range s.Keys {
		row, col := k.Key/8, k.Key%8
		if row >= 8 {
			break
		}
		grid[row][col] = m.Theme.LEDColor(k.Stage)
		lastRow = row
	}
	return widgets.RenderPadGrid(grid, lastRow)
}

func (m Model) legend() string {
	var lines []string
	for _, st := range []synth.Stage{synth.StageAttacking, synth.StageDecaying, synth.StageSustaining, synth.StageReleasing} {
		lines = append(lines, widgets.RenderLegendItem(m.Theme.StageRGB(st), st.String(), string(m.Theme.StageSymbol(st))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) devicesLine() string {
	if m.DeviceMgr == nil {
		return "midi off"
	}
	if len(m.devices) == 0 {
		return "no midi devices"
	}
	ids := make([]string, 0, len(m.devices))
	for id, t := range m.devices {
		ids = append(ids, fmt.Sprintf("%s (%s)", id, t))
	}
	sort.Strings(ids)
	return "midi: " + strings.Join(ids, ", ")
}

// Help lists the key bindings for --help
func Help() string {
	return widgets.RenderKeyHelp([]widgets.KeySection{
		{Title: "Play", Keys: []widgets.KeyBinding{
			{Key: strings.Join(Bindings, " "), Desc: "keys 0-12, held while the key repeats"},
			{Key: "space", Desc: "release every key"},
			{Key: "z / x", Desc: "octave down / up"},
		}},
		{Title: "Mix", Keys: []widgets.KeyBinding{
			{Key: "- / +", Desc: "master volume -1 / +1 dB"},
			{Key: "[ / ]", Desc: "tuning reference -1 / +1 Hz"},
		}},
		{Title: "App", Keys: []widgets.KeyBinding{
			{Key: "q", Desc: "quit and save settings"},
		}},
	})
}
