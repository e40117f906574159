package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/spf13/pflag"

	"go-tonegen/audio"
	"go-tonegen/config"
	"go-tonegen/debug"
	"go-tonegen/midi"
	"go-tonegen/music"
	"go-tonegen/synth"
	"go-tonegen/theme"
	"go-tonegen/tui"
)

func main() {
	var (
		cfgPath  string
		palette  string
		debugLog bool
		headless bool
		noMIDI   bool
		keysHelp bool
		tuning   float64
		policy   string
		volume   float64
	)
	pflag.StringVarP(&cfgPath, "config", "c", "", "config file (default ~/.config/go-tonegen/config.json)")
	pflag.StringVar(&palette, "palette", "", "GIMP palette file for colours (default builtin plasma)")
	pflag.BoolVarP(&debugLog, "debug", "d", false, "write ~/.config/go-tonegen/debug.log")
	pflag.BoolVar(&headless, "headless", false, "run the audio clock without a sound device")
	pflag.BoolVar(&noMIDI, "no-midi", false, "do not open MIDI controllers")
	pflag.BoolVar(&keysHelp, "keys", false, "print the key bindings and exit")
	pflag.Float64VarP(&tuning, "tuning", "t", music.DefaultReference, "A4 reference in Hz")
	pflag.StringVarP(&policy, "policy", "p", "retire", "retrigger policy: retire or reuse")
	pflag.Float64VarP(&volume, "volume", "v", -12, "master volume in dBFS")
	pflag.Parse()

	if keysHelp {
		fmt.Println(tui.Help())
		return
	}

	if debugLog {
		if err := debug.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// flags given on the command line win over the file
	flags := pflag.CommandLine
	if flags.Changed("tuning") {
		cfg.Tuning.Reference = tuning
	}
	if flags.Changed("policy") {
		cfg.Voices.Policy = policy
	}
	if flags.Changed("volume") {
		cfg.Master.VolumeDB = volume
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	th := theme.New(loadPalette(palette))

	actx := audio.NewContext(cfg.Voices.MaxOscillators,
		core.WithSampleRate(cfg.Audio.SampleRate),
		core.WithBlockSize(cfg.Audio.BlockSize))

	out := openOutput(actx, headless || cfg.Audio.Headless)

	engine := synth.NewEngine(actx, cfg.TableOptions(music.NewTuningConfig(cfg.Tuning.Reference)))
	engine.SetLEDColors(th.LEDColor)
	engine.SetVolumeDB(cfg.Master.VolumeDB)
	engine.Start()

	if err := out.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		engine.Stop()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Create MIDI device manager (handles hot-plug)
	var deviceMgr *midi.DeviceManager
	if !noMIDI {
		deviceMgr = midi.NewDeviceManager(cfg.ManagerOptions())
		go deviceMgr.Run(ctx)
	}

	m := tui.NewModel(engine, deviceMgr, th, cfg, cfgPath)
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, runErr := p.Run()

	cancel()
	engine.Stop()
	if err := out.Close(); err != nil {
		debug.Log("audio", "close: %v", err)
	}

	if runErr != nil {
		fmt.Printf("Error: %v\n", runErr)
		os.Exit(1)
	}
}

func loadPalette(path string) *theme.Palette {
	if path == "" {
		return theme.Default()
	}
	p, err := theme.LoadGPL(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "palette: %v (using builtin)\n", err)
		return theme.Default()
	}
	return p
}

// openOutput falls back to the headless clock when no device opens
func openOutput(ctx *audio.Context, headless bool) audio.Output {
	if headless {
		return audio.NewHeadlessOutput(ctx)
	}
	o, err := audio.NewOtoOutput(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v (running headless)\n", err)
		debug.Log("audio", "falling back to headless: %v", err)
		return audio.NewHeadlessOutput(ctx)
	}
	return o
}
