package device

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/mqttbridge/core/model"
)

// ErrDeviceExists is returned by Add for an ID already in the directory.
var ErrDeviceExists = errors.New("device already exists")

// State is the lifecycle stage of a device known to the bridge.
type State string

const (
	// StatePending devices have bootstrapped but not yet reported data.
	StatePending State = "pending"
	// StateActive devices have reported data under their current bootstrap.
	StateActive State = "active"
)

// Device captures the current known state of a device.
type Device struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	BootstrapID string         `json:"bootstrap_id,omitempty"`
	State       State          `json:"state"`
	Variables   map[string]any `json:"variables,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	LastSeen    time.Time      `json:"last_seen,omitempty"`
}

func (d Device) clone() Device {
	d.Variables = maps.Clone(d.Variables)
	return d
}

type Filter struct {
	State State
}

// ActivationFunc is called, outside the directory lock, when a device
// becomes active under a bootstrap ID.
type ActivationFunc func(Device)

// Directory is an in-memory device model fed by router events.
type Directory struct {
	mu         sync.RWMutex
	data       map[string]Device
	now        func() time.Time
	onActivate ActivationFunc
}

type Option func(*Directory)

func WithClock(now func() time.Time) Option { return func(d *Directory) { d.now = now } }

func WithActivation(f ActivationFunc) Option { return func(d *Directory) { d.onActivate = f } }

func NewDirectory(opts ...Option) *Directory {
	d := &Directory{data: map[string]Device{}, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Add creates a pending device by hand, ahead of its bootstrap.
func (d *Directory) Add(id, name string) (Device, error) {
	if id == "" {
		return Device{}, fmt.Errorf("add device: empty id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data[id]; ok {
		return Device{}, fmt.Errorf("add device %s: %w", id, ErrDeviceExists)
	}
	dev := Device{ID: id, Name: name, State: StatePending, CreatedAt: d.now()}
	d.data[id] = dev
	return dev.clone(), nil
}

// OnEvent applies a router event.
func (d *Directory) OnEvent(ev model.Event) {
	var activated *Device
	d.mu.Lock()
	switch e := ev.(type) {
	case model.BootstrapRegistered:
		d.register(e)
	case model.DeviceDataReceived:
		activated = d.update(e)
	}
	d.mu.Unlock()
	if activated != nil && d.onActivate != nil {
		d.onActivate(*activated)
	}
}

// register puts the device back to pending under its new bootstrap ID.
func (d *Directory) register(e model.BootstrapRegistered) {
	now := d.now()
	dev, ok := d.data[e.DeviceID]
	if !ok {
		dev = Device{ID: e.DeviceID, CreatedAt: now}
	}
	if e.Name != "" {
		dev.Name = e.Name
	}
	dev.BootstrapID = e.BootstrapID
	dev.State = StatePending
	dev.LastSeen = now
	dev.Variables = merge(dev.Variables, e.InitialData)
	d.data[e.DeviceID] = dev
}

func (d *Directory) update(e model.DeviceDataReceived) *Device {
	now := d.now()
	dev, ok := d.data[e.DeviceID]
	if !ok {
		dev = Device{ID: e.DeviceID, CreatedAt: now}
	}
	first := dev.State != StateActive || dev.BootstrapID != e.BootstrapID
	dev.BootstrapID = e.BootstrapID
	dev.State = StateActive
	dev.LastSeen = now
	dev.Variables = merge(dev.Variables, e.Updates)
	d.data[e.DeviceID] = dev
	if !first {
		return nil
	}
	c := dev.clone()
	return &c
}

func merge(vars map[string]any, updates []model.VariableUpdate) map[string]any {
	if len(updates) == 0 {
		return vars
	}
	if vars == nil {
		vars = make(map[string]any, len(updates))
	}
	for _, u := range updates {
		vars[u.Name] = u.Value
	}
	return vars
}

// Get returns a copy of the device with the given ID.
func (d *Directory) Get(id string) (Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.data[id]
	if !ok {
		return Device{}, false
	}
	return dev.clone(), true
}

// List returns matching devices sorted by ID.
func (d *Directory) List(f Filter) []Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res := make([]Device, 0, len(d.data))
	for _, dev := range d.data {
		if f.State != "" && dev.State != f.State {
			continue
		}
		res = append(res, dev.clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
