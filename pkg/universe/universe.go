// Package universe holds the read-only system, spob and faction catalogs the
// mission engine matches against, plus the mutable per-system claim flags.
package universe

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// System is a star system reference.
type System struct {
	// Name is the unique system name.
	Name string `yaml:"name" validate:"required"`

	// claimed is set while an active mission claim covers this system.
	claimed bool
}

// Spob is a landable body (station, planet) inside a system.
type Spob struct {
	// Name is the unique spob name.
	Name string `yaml:"name" validate:"required"`

	// System is the name of the system containing this spob.
	System string `yaml:"system" validate:"required"`

	// Faction is the id of the controlling faction, if any.
	Faction int `yaml:"faction"`

	// NoMissions marks a spob where generic missions must not spawn.
	NoMissions bool `yaml:"no_missions"`
}

// Faction is a political faction id/name pair.
type Faction struct {
	ID   int    `yaml:"id" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

// Universe is the immutable-after-load reference catalog. Only the per-system
// claim flags mutate after load, and only through the claim accessors.
type Universe struct {
	systems  map[string]*System
	spobs    map[string]*Spob
	factions map[int]*Faction
}

// file is the on-disk YAML shape of a universe definition.
type file struct {
	Systems  []System  `yaml:"systems" validate:"required,dive"`
	Spobs    []Spob    `yaml:"spobs" validate:"dive"`
	Factions []Faction `yaml:"factions" validate:"dive"`
}

// New builds an empty universe. Mostly useful for tests that add entries by
// hand.
func New() *Universe {
	return &Universe{
		systems:  make(map[string]*System),
		spobs:    make(map[string]*Spob),
		factions: make(map[int]*Faction),
	}
}

// Load reads a universe definition from a YAML file.
func Load(path string) (*Universe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse universe file: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid universe file: %w", err)
	}

	u := New()
	for i := range f.Systems {
		s := f.Systems[i]
		u.AddSystem(&s)
	}
	for i := range f.Spobs {
		sp := f.Spobs[i]
		if _, ok := u.systems[sp.System]; !ok {
			return nil, fmt.Errorf("spob %q references unknown system %q", sp.Name, sp.System)
		}
		u.AddSpob(&sp)
	}
	for i := range f.Factions {
		fc := f.Factions[i]
		u.AddFaction(&fc)
	}
	return u, nil
}

// AddSystem registers a system.
func (u *Universe) AddSystem(s *System) {
	u.systems[s.Name] = s
}

// AddSpob registers a spob.
func (u *Universe) AddSpob(s *Spob) {
	u.spobs[s.Name] = s
}

// AddFaction registers a faction.
func (u *Universe) AddFaction(f *Faction) {
	u.factions[f.ID] = f
}

// GetSystem looks a system up by name.
func (u *Universe) GetSystem(name string) (*System, bool) {
	s, ok := u.systems[name]
	return s, ok
}

// GetSpob looks a spob up by name.
func (u *Universe) GetSpob(name string) (*Spob, bool) {
	s, ok := u.spobs[name]
	return s, ok
}

// GetFaction looks a faction up by id.
func (u *Universe) GetFaction(id int) (*Faction, bool) {
	f, ok := u.factions[id]
	return f, ok
}

// ClaimSystem marks a system as covered by an active claim.
func (u *Universe) ClaimSystem(name string) {
	if s, ok := u.systems[name]; ok {
		s.claimed = true
	}
}

// UnclaimSystem clears the claim flag on a system.
func (u *Universe) UnclaimSystem(name string) {
	if s, ok := u.systems[name]; ok {
		s.claimed = false
	}
}

// SystemClaimed reports whether an active claim covers the named system.
func (u *Universe) SystemClaimed(name string) bool {
	if s, ok := u.systems[name]; ok {
		return s.claimed
	}
	return false
}
