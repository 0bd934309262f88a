// Package claims implements system/string reservations used to keep two
// missions from narratively contending over the same place. The engine only
// relies on the create/add/test/activate/destroy/save/load surface.
package claims

import (
	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

// targetState tracks active claims against one target.
type targetState struct {
	exclusive int
	shared    int
}

// Registry is the process-wide arbiter of claims. It owns the claimed-string
// table and mirrors exclusive system claims into the universe claim flags.
type Registry struct {
	uni     *universe.Universe
	systems map[string]*targetState
	strings map[string]*targetState
	logger  *telemetry.Logger
}

// NewRegistry creates a claim registry over the given universe.
func NewRegistry(uni *universe.Universe, logger *telemetry.Logger) *Registry {
	return &Registry{
		uni:     uni,
		systems: make(map[string]*targetState),
		strings: make(map[string]*targetState),
		logger:  logger.NewComponentLogger("claims"),
	}
}

// Set is a claim set owned by a single mission. Targets are added before
// activation; once active the set holds its reservations until destroyed.
type Set struct {
	reg       *Registry
	exclusive bool
	active    bool
	systems   []string
	strs      []string
}

// Snapshot is the save-format shape of a claim set.
type Snapshot struct {
	Exclusive bool     `json:"exclusive" yaml:"exclusive"`
	Active    bool     `json:"active" yaml:"active"`
	Systems   []string `json:"systems,omitempty" yaml:"systems,omitempty"`
	Strings   []string `json:"strings,omitempty" yaml:"strings,omitempty"`
}

// Create makes a new, empty, inactive claim set.
func (r *Registry) Create(exclusive bool) *Set {
	return &Set{reg: r, exclusive: exclusive}
}

// AddSystem adds a system target. No-op once the set is active.
func (s *Set) AddSystem(name string) {
	if s.active {
		return
	}
	s.systems = append(s.systems, name)
}

// AddString adds a free-form string target. No-op once the set is active.
func (s *Set) AddString(tag string) {
	if s.active {
		return
	}
	s.strs = append(s.strs, tag)
}

// Test reports whether the set could activate without conflict. It never
// mutates claim state.
func (s *Set) Test() bool {
	if s == nil {
		return true
	}
	for _, name := range s.systems {
		if conflicts(s.reg.systems[name], s.exclusive) {
			return false
		}
	}
	for _, tag := range s.strs {
		if conflicts(s.reg.strings[tag], s.exclusive) {
			return false
		}
	}
	return true
}

// conflicts applies the arbitration rule: an exclusive claimant conflicts
// with any active claim, a shared claimant only with exclusive ones.
func conflicts(st *targetState, exclusive bool) bool {
	if st == nil {
		return false
	}
	if exclusive {
		return st.exclusive > 0 || st.shared > 0
	}
	return st.exclusive > 0
}

// Activate takes the reservations. Activating an already-active set is a
// no-op.
func (s *Set) Activate() {
	if s == nil || s.active {
		return
	}
	s.active = true
	for _, name := range s.systems {
		s.reg.take(s.reg.systems, name, s.exclusive)
		if s.exclusive {
			s.reg.uni.ClaimSystem(name)
		}
	}
	for _, tag := range s.strs {
		s.reg.take(s.reg.strings, tag, s.exclusive)
	}
}

func (r *Registry) take(m map[string]*targetState, key string, exclusive bool) {
	st := m[key]
	if st == nil {
		st = &targetState{}
		m[key] = st
	}
	if exclusive {
		st.exclusive++
	} else {
		st.shared++
	}
}

func (r *Registry) release(m map[string]*targetState, key string, exclusive bool) {
	st := m[key]
	if st == nil {
		return
	}
	if exclusive && st.exclusive > 0 {
		st.exclusive--
	} else if !exclusive && st.shared > 0 {
		st.shared--
	}
	if st.exclusive == 0 && st.shared == 0 {
		delete(m, key)
	}
}

// Destroy releases the reservations. Safe to call on a nil or never-activated
// set, and safe to call twice.
func (s *Set) Destroy() {
	if s == nil || !s.active {
		return
	}
	s.active = false
	for _, name := range s.systems {
		s.reg.release(s.reg.systems, name, s.exclusive)
		if s.exclusive && s.reg.systems[name] == nil {
			s.reg.uni.UnclaimSystem(name)
		}
	}
	for _, tag := range s.strs {
		s.reg.release(s.reg.strings, tag, s.exclusive)
	}
}

// Active reports whether the set currently holds its reservations.
func (s *Set) Active() bool {
	return s != nil && s.active
}

// Save produces the persistable shape of the set.
func (s *Set) Save() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		Exclusive: s.exclusive,
		Active:    s.active,
		Systems:   append([]string(nil), s.systems...),
		Strings:   append([]string(nil), s.strs...),
	}
}

// Load reconstructs a claim set from a snapshot, re-activating it if it was
// active when saved.
func (r *Registry) Load(snap *Snapshot) *Set {
	if snap == nil {
		return nil
	}
	s := r.Create(snap.Exclusive)
	s.systems = append([]string(nil), snap.Systems...)
	s.strs = append([]string(nil), snap.Strings...)
	if snap.Active {
		if !s.Test() {
			r.logger.Warn("restored claim set conflicts with live claims, activating anyway")
		}
		s.Activate()
	}
	return s
}
