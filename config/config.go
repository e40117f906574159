package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go-tonegen/midi"
	"go-tonegen/music"
	"go-tonegen/synth"
)

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid config")

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX    ControllerType = "launchpad-x"
	ControllerLaunchpadMini ControllerType = "launchpad-mini"
	ControllerLaunchpadPro  ControllerType = "launchpad-pro"
	ControllerKeyboard      ControllerType = "keyboard"
	ControllerIgnore        ControllerType = "ignore"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName     string         `json:"portName"`
	Type         ControllerType `json:"type"`
	AutoConnect  bool           `json:"autoConnect"`
	InputChannel int            `json:"inputChannel,omitempty"` // 1-16 for keyboards, 0 = omni
}

type TuningConfig struct {
	Reference float64 `json:"reference"`
}

type KeyboardConfig struct {
	BaseNote int `json:"baseNote"`
	Keys     int `json:"keys"`
	// HoldMs is how long a terminal key stays down after its last auto-repeat
	HoldMs int `json:"holdMs"`
}

type VoicesConfig struct {
	Policy         string `json:"policy"`
	MaxOscillators int    `json:"maxOscillators"` // 0 = unlimited
}

type AudioConfig struct {
	SampleRate float64 `json:"sampleRate"`
	BlockSize  int     `json:"blockSize"`
	Headless   bool    `json:"headless,omitempty"`
}

type MasterConfig struct {
	VolumeDB float64 `json:"volumeDB"`
}

// Config is the main configuration structure
type Config struct {
	Tuning      TuningConfig       `json:"tuning"`
	Envelope    synth.Envelope     `json:"envelope"`
	Keyboard    KeyboardConfig     `json:"keyboard"`
	Voices      VoicesConfig       `json:"voices"`
	Audio       AudioConfig        `json:"audio"`
	Master      MasterConfig       `json:"master"`
	Controllers []ControllerConfig `json:"controllers,omitempty"`
	// AutoKeyboards opens unlisted MIDI inputs as keyboards
	AutoKeyboards bool `json:"autoKeyboards"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tuning:   TuningConfig{Reference: music.DefaultReference},
		Envelope: synth.DefaultEnvelope,
		Keyboard: KeyboardConfig{BaseNote: 60, Keys: 13, HoldMs: 350},
		Voices:   VoicesConfig{Policy: synth.RetireAndReplace.String(), MaxOscillators: 64},
		Audio:    AudioConfig{SampleRate: 48000, BlockSize: 1024},
		Master:   MasterConfig{VolumeDB: -12},
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				AutoConnect: true,
			},
		},
		AutoKeyboards: true,
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-tonegen"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config at path (or the default path when empty).
// A missing file yields defaults; fields absent from the file keep theirs.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path (or the default path when empty)
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports the first field that cannot be used
func (c *Config) Validate() error {
	invalid := func(field string, v any) error {
		return fmt.Errorf("%w: %s = %v", ErrInvalid, field, v)
	}

	if r := c.Tuning.Reference; !(r > 0) || math.IsInf(r, 0) {
		return invalid("tuning.reference", r)
	}
	if err := c.Envelope.Validate(); err != nil {
		return fmt.Errorf("%w: envelope: %w", ErrInvalid, err)
	}
	if c.Keyboard.Keys < 1 || c.Keyboard.Keys > 128 {
		return invalid("keyboard.keys", c.Keyboard.Keys)
	}
	if c.Keyboard.BaseNote < 0 || c.Keyboard.BaseNote+c.Keyboard.Keys-1 > 127 {
		return invalid("keyboard.baseNote", c.Keyboard.BaseNote)
	}
	if c.Keyboard.HoldMs <= 0 {
		return invalid("keyboard.holdMs", c.Keyboard.HoldMs)
	}
	if _, err := synth.ParsePolicy(c.Voices.Policy); err != nil {
		return fmt.Errorf("%w: voices.policy: %w", ErrInvalid, err)
	}
	if c.Voices.MaxOscillators < 0 {
		return invalid("voices.maxOscillators", c.Voices.MaxOscillators)
	}
	if sr := c.Audio.SampleRate; !(sr > 0) || math.IsInf(sr, 0) {
		return invalid("audio.sampleRate", sr)
	}
	if c.Audio.BlockSize <= 0 {
		return invalid("audio.blockSize", c.Audio.BlockSize)
	}
	if v := c.Master.VolumeDB; math.IsNaN(v) {
		return invalid("master.volumeDB", v)
	}
	for i, ctrl := range c.Controllers {
		if _, err := ctrl.Type.midiType(); err != nil {
			return fmt.Errorf("%w: controllers[%d].type: %w", ErrInvalid, i, err)
		}
		if ctrl.InputChannel < 0 || ctrl.InputChannel > 16 {
			return invalid(fmt.Sprintf("controllers[%d].inputChannel", i), ctrl.InputChannel)
		}
	}
	return nil
}

// Policy returns the parsed voice retrigger policy
func (c *Config) Policy() synth.RetriggerPolicy {
	p, _ := synth.ParsePolicy(c.Voices.Policy)
	return p
}

func (t ControllerType) midiType() (midi.ControllerType, error) {
	switch {
	case strings.HasPrefix(string(t), "launchpad"):
		return midi.ControllerLaunchpad, nil
	case t == ControllerKeyboard:
		return midi.ControllerKeyboard, nil
	case t == ControllerIgnore:
		return midi.ControllerUnknown, nil
	}
	return midi.ControllerUnknown, fmt.Errorf("unknown controller type %q", t)
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}

// ManagerOptions turns the controller list into device manager rules.
// Controllers without autoConnect are ignored rather than opened.
func (c *Config) ManagerOptions() midi.ManagerOptions {
	opts := midi.ManagerOptions{AutoKeyboards: c.AutoKeyboards}
	for _, ctrl := range c.Controllers {
		typ, err := ctrl.Type.midiType()
		if err != nil || !ctrl.AutoConnect {
			typ = midi.ControllerUnknown
		}
		opts.Rules = append(opts.Rules, midi.PortRule{
			Name:    ctrl.PortName,
			Type:    typ,
			Channel: ctrl.InputChannel - 1,
		})
	}
	return opts
}

// TableOptions builds the voice table settings
func (c *Config) TableOptions(tuning *music.TuningConfig) synth.TableOptions {
	return synth.TableOptions{
		Keys:     c.Keyboard.Keys,
		BaseNote: c.Keyboard.BaseNote,
		Envelope: c.Envelope,
		Policy:   c.Policy(),
		Tuning:   tuning,
	}
}
