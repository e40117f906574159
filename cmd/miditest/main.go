package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-tonegen/config"
	"go-tonegen/debug"
	"go-tonegen/midi"
	"go-tonegen/music"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "detect":
		detect()
	case "monitor":
		monitor()
	case "config":
		dumpConfig()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list    - List all MIDI ports")
	fmt.Println("  detect  - Show what each input would open as")
	fmt.Println("  monitor - Print notes as keys and frequencies")
	fmt.Println("  config  - Dump the loaded config")
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func ports() ([]drivers.In, []drivers.Out, bool) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, true
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! MIDI port listing is hung.")
		fmt.Println("Fix (macOS): sudo killall coreaudiod midiserver")
		return nil, nil, false
	}
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ins, outs, ok := ports()
	if !ok {
		return
	}
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
}

func detect() {
	dm := midi.NewDeviceManager(loadConfig().ManagerOptions())

	ins, _, ok := ports()
	if !ok {
		return
	}
	if len(ins) == 0 {
		fmt.Println("No MIDI inputs")
		return
	}
	for _, p := range ins {
		rule, ok := dm.Classify(p.String())
		if !ok {
			fmt.Printf("  %-40s ignored\n", p.String())
			continue
		}
		channel := "omni"
		if rule.Type == midi.ControllerKeyboard && rule.Channel >= 0 {
			channel = fmt.Sprintf("ch %d", rule.Channel+1)
		}
		if rule.Type == midi.ControllerLaunchpad {
			channel = "pads"
		}
		fmt.Printf("  %-40s %s (%s)\n", p.String(), rule.Type, channel)
	}
}

func monitor() {
	cfg := loadConfig()
	tuning := music.Tuning{Reference: cfg.Tuning.Reference}
	debug.SetOutput(os.Stderr)

	fmt.Println("Listening for notes. Connect devices any time. Ctrl+C to exit.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dm := midi.NewDeviceManager(cfg.ManagerOptions())
	go dm.Run(ctx)

	for ev := range dm.Events() {
		if ev.Type == midi.DeviceDisconnected {
			fmt.Printf("[%s] - %s\n", stamp(), ev.ID)
			continue
		}
		fmt.Printf("[%s] + %s (%s)\n", stamp(), ev.ID, ev.Controller.Type())
		go printNotes(ev.Controller, cfg.Keyboard.BaseNote, cfg.Keyboard.Keys, tuning)
		go printPads(ev.Controller)
	}
}

func printNotes(c midi.Controller, base, keys int, tuning music.Tuning) {
	for n := range c.NoteEvents() {
		key := int(n.Note) - base
		where := fmt.Sprintf("key %d", key)
		if key < 0 || key >= keys {
			where = "off keyboard"
		}
		state := "off"
		if n.On {
			state = "on "
		}
		fmt.Printf("[%s] %s %-4s vel %3d ch %2d  %-12s %8.2f Hz\n",
			stamp(), state, music.NoteName(int(n.Note)), n.Velocity, n.Channel+1, where,
			tuning.NoteToFrequency(float64(n.Note)))
	}
}

func printPads(c midi.Controller) {
	for p := range c.PadEvents() {
		fmt.Printf("[%s] pad %d,%d on=%v vel %d\n", stamp(), p.Row, p.Col, p.On, p.Velocity)
	}
}

func stamp() string {
	return time.Now().Format("15:04:05.000")
}

func dumpConfig() {
	cfg := loadConfig()
	path, _ := config.ConfigPath()
	fmt.Printf("config: %s\n", path)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("INVALID: %v\n", err)
	}
	spew.Config.DisableMethods = true
	spew.Dump(cfg)
}
