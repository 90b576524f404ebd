package kb

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/gnss-adapter/model"
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventVehicleAdded EventType = iota
	EventVehicleRemoved
)

// Event is emitted to subscribers when the catalog changes.
type Event struct {
	Type    EventType
	Vehicle SpaceVehicle
}

// SpaceVehicle is one catalogued satellite with its orbital elements.
type SpaceVehicle struct {
	Constellation model.Constellation
	Svid          int
	Name          string
	TLE1          string
	TLE2          string
}

// Key identifies a vehicle within the catalog.
func (v SpaceVehicle) Key() string {
	return fmt.Sprintf("%s-%d", v.Constellation, v.Svid)
}

// Catalog is an in-memory, thread-safe store of space vehicles.
type Catalog struct {
	mu       sync.RWMutex
	vehicles map[string]SpaceVehicle
	subs     []func(Event)
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{vehicles: make(map[string]SpaceVehicle)}
}

// Add inserts a vehicle. It returns an error if the constellation/svid pair
// is already catalogued or the svid is out of range.
func (c *Catalog) Add(v SpaceVehicle) error {
	if v.Constellation == model.ConstellationUnknown {
		return fmt.Errorf("vehicle %q has no constellation", v.Name)
	}
	if v.Svid < 1 || v.Svid > 64 {
		return fmt.Errorf("vehicle %q svid %d out of range", v.Name, v.Svid)
	}
	c.mu.Lock()
	if _, exists := c.vehicles[v.Key()]; exists {
		c.mu.Unlock()
		return fmt.Errorf("vehicle %s already exists", v.Key())
	}
	c.vehicles[v.Key()] = v
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		sub(Event{Type: EventVehicleAdded, Vehicle: v})
	}
	return nil
}

// Remove deletes a vehicle; unknown keys are a no-op.
func (c *Catalog) Remove(constellation model.Constellation, svid int) {
	key := SpaceVehicle{Constellation: constellation, Svid: svid}.Key()
	c.mu.Lock()
	v, ok := c.vehicles[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.vehicles, key)
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		sub(Event{Type: EventVehicleRemoved, Vehicle: v})
	}
}

// Get returns the vehicle for constellation/svid.
func (c *Catalog) Get(constellation model.Constellation, svid int) (SpaceVehicle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vehicles[SpaceVehicle{Constellation: constellation, Svid: svid}.Key()]
	return v, ok
}

// List returns a snapshot of all vehicles ordered by constellation then svid.
func (c *Catalog) List() []SpaceVehicle {
	c.mu.RLock()
	res := make([]SpaceVehicle, 0, len(c.vehicles))
	for _, v := range c.vehicles {
		res = append(res, v)
	}
	c.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Constellation != res[j].Constellation {
			return res[i].Constellation < res[j].Constellation
		}
		return res[i].Svid < res[j].Svid
	})
	return res
}

// Len returns the number of catalogued vehicles.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vehicles)
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	idx := len(c.subs) - 1

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < 0 || idx >= len(c.subs) {
			return
		}
		c.subs = append(c.subs[:idx], c.subs[idx+1:]...)
		idx = -1
	}
}

type catalogFile struct {
	Vehicles []struct {
		Constellation string `yaml:"constellation"`
		Svid          int    `yaml:"svid"`
		Name          string `yaml:"name"`
		TLE1          string `yaml:"tle1"`
		TLE2          string `yaml:"tle2"`
	} `yaml:"vehicles"`
}

// LoadFile reads a YAML catalog file into c.
func (c *Catalog) LoadFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	added := 0
	for _, raw := range f.Vehicles {
		constellation, err := model.ParseConstellation(raw.Constellation)
		if err != nil {
			return added, fmt.Errorf("catalog %s: %w", path, err)
		}
		if err := c.Add(SpaceVehicle{
			Constellation: constellation,
			Svid:          raw.Svid,
			Name:          raw.Name,
			TLE1:          raw.TLE1,
			TLE2:          raw.TLE2,
		}); err != nil {
			return added, fmt.Errorf("catalog %s: %w", path, err)
		}
		added++
	}
	return added, nil
}
