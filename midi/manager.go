package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-tonegen/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// PortRule binds an input port to a controller type.
// Name matches case-insensitively, either exactly or as a substring.
type PortRule struct {
	Name    string
	Type    ControllerType
	Channel int // keyboards only; -1 for omni
}

func (r PortRule) matches(name string) bool {
	rule := strings.ToLower(r.Name)
	return rule != "" && strings.Contains(strings.ToLower(name), rule)
}

// ManagerOptions configures which ports the manager opens
type ManagerOptions struct {
	Rules []PortRule
	// AutoKeyboards opens every unmatched input that is not a Launchpad
	// or a loopback port as an omni keyboard.
	AutoKeyboards bool
	PollRate      time.Duration
}

// DeviceManager handles hot-plug detection of MIDI controllers
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	opts        ManagerOptions

	// swapped in tests
	ports func() ([]drivers.In, []drivers.Out)
}

// NewDeviceManager creates a new device manager
func NewDeviceManager(opts ManagerOptions) *DeviceManager {
	if opts.PollRate <= 0 {
		opts.PollRate = time.Second
	}
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		opts:        opts,
		ports:       listPorts,
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	snapshot := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		snapshot[k] = v
	}
	return snapshot
}

// GetLaunchpad returns the first connected Launchpad (or nil)
func (dm *DeviceManager) GetLaunchpad() Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == ControllerLaunchpad {
			return c
		}
	}
	return nil
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.opts.PollRate)
	defer ticker.Stop()

	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func listPorts() ([]drivers.In, []drivers.Out) {
	return gomidi.GetInPorts(), gomidi.GetOutPorts()
}

// Classify decides what controller, if any, an input port should become
func (dm *DeviceManager) Classify(name string) (PortRule, bool) {
	return classify(name, dm.opts)
}

func classify(name string, opts ManagerOptions) (PortRule, bool) {
	for _, r := range opts.Rules {
		if r.matches(name) {
			if r.Type == ControllerUnknown {
				return PortRule{}, false
			}
			return r, true
		}
	}
	if isLaunchpad(name) {
		return PortRule{Name: name, Type: ControllerLaunchpad}, true
	}
	if opts.AutoKeyboards && !isLoopback(name) && !strings.Contains(strings.ToLower(name), "launchpad") {
		return PortRule{Name: name, Type: ControllerKeyboard, Channel: -1}, true
	}
	return PortRule{}, false
}

func (dm *DeviceManager) scan() {
	// Port listing can hang on some platforms
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		in, out := dm.ports()
		ch <- portsResult{inPorts: in, outPorts: out}
	}()

	var inPorts []drivers.In
	var outPorts []drivers.Out

	select {
	case result := <-ch:
		inPorts = result.inPorts
		outPorts = result.outPorts
	case <-time.After(3 * time.Second):
		debug.Log("midi", "port scan timed out")
		return
	}

	seenIDs := make(map[string]bool)
	var connected []DeviceEvent

	for _, inPort := range inPorts {
		id := inPort.String()
		rule, ok := dm.Classify(id)
		if !ok {
			continue
		}
		seenIDs[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := dm.open(rule, inPort, outPorts)
		if err != nil {
			debug.Log("midi", "open %s as %s: %v", id, rule.Type, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()
		connected = append(connected, DeviceEvent{Type: DeviceConnected, Controller: c, ID: id})
	}

	dm.mu.Lock()
	var gone []DeviceEvent
	for id, c := range dm.controllers {
		if !seenIDs[id] {
			c.Close()
			delete(dm.controllers, id)
			gone = append(gone, DeviceEvent{Type: DeviceDisconnected, ID: id})
		}
	}
	dm.mu.Unlock()

	for _, ev := range append(connected, gone...) {
		debug.Log("midi", "device %s connected=%v", ev.ID, ev.Type == DeviceConnected)
		dm.events <- ev
	}
}

func (dm *DeviceManager) open(rule PortRule, in drivers.In, outPorts []drivers.Out) (Controller, error) {
	id := in.String()
	switch rule.Type {
	case ControllerLaunchpad:
		var out drivers.Out
		name := strings.ToLower(id)
		for _, op := range outPorts {
			if strings.ToLower(op.String()) == name {
				out = op
				break
			}
		}
		return NewLaunchpadController(id, in, out)
	default:
		return NewKeyboardController(id, in, rule.Channel)
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

func isLaunchpad(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "launchpad") && strings.Contains(name, "midi")
}

func isLoopback(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "through") || strings.Contains(name, "loopback")
}
