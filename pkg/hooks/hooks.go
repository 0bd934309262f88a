// Package hooks provides owner-scoped hook registration, per-mission NPC
// bindings, and fire-and-forget named-event broadcast. Missions register
// hooks under their id; teardown removes everything for that owner in one
// call.
package hooks

import (
	"time"

	"github.com/google/uuid"

	"github.com/starlance/starlance/pkg/telemetry"
)

// OwnerID scopes registrations to a mission instance id.
type OwnerID uint32

// Event is a broadcast notification with typed parameters.
type Event struct {
	// ID is the unique identifier for this event.
	ID string

	// Timestamp is when the event was broadcast.
	Timestamp time.Time

	// Type is the event name (e.g. "mission_done").
	Type string

	// Data contains event-specific parameters.
	Data map[string]interface{}
}

// Event types broadcast by the mission engine.
const (
	EventMissionDone     = "mission_done"
	EventMissionAccepted = "mission_accepted"
	EventMissionAborted  = "mission_aborted"
)

// Handler handles a broadcast event.
type Handler func(Event)

// registration is one hook entry.
type registration struct {
	id      string
	owner   OwnerID
	event   string
	handler Handler
}

// NPC is a bar character binding tied to a mission's lifetime.
type NPC struct {
	ID    string
	Owner OwnerID
	Name  string
}

// Dispatcher owns hook registrations and NPC bindings. It is synchronous and
// single-goroutine: handlers run inline on Broadcast, and may themselves
// register or remove hooks (Broadcast iterates a copy).
type Dispatcher struct {
	regs   []registration
	npcs   []NPC
	logger *telemetry.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *telemetry.Logger) *Dispatcher {
	return &Dispatcher{logger: logger.NewComponentLogger("hooks")}
}

// Register adds a hook for an event under the given owner and returns its id.
func (d *Dispatcher) Register(owner OwnerID, event string, handler Handler) string {
	id := uuid.New().String()
	d.regs = append(d.regs, registration{
		id:      id,
		owner:   owner,
		event:   event,
		handler: handler,
	})
	return id
}

// Remove deletes a single hook by id.
func (d *Dispatcher) Remove(id string) {
	for i, r := range d.regs {
		if r.id == id {
			d.regs = append(d.regs[:i], d.regs[i+1:]...)
			return
		}
	}
}

// RemoveAllForOwner deletes every hook registered under the owner.
func (d *Dispatcher) RemoveAllForOwner(owner OwnerID) {
	kept := d.regs[:0]
	for _, r := range d.regs {
		if r.owner != owner {
			kept = append(kept, r)
		}
	}
	d.regs = kept
}

// Rekey moves every hook and NPC binding from one owner to another. Used
// when a transient mission acquires its real id at accept time.
func (d *Dispatcher) Rekey(from, to OwnerID) {
	for i := range d.regs {
		if d.regs[i].owner == from {
			d.regs[i].owner = to
		}
	}
	for i := range d.npcs {
		if d.npcs[i].Owner == from {
			d.npcs[i].Owner = to
		}
	}
}

// Broadcast fires an event at every matching hook. Fire-and-forget: handler
// panics are not recovered (a broken handler is a programming error), handler
// errors do not exist.
func (d *Dispatcher) Broadcast(event string, data map[string]interface{}) {
	ev := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      event,
		Data:      data,
	}

	// Copy so handlers can mutate registrations mid-broadcast.
	matched := make([]Handler, 0, len(d.regs))
	for _, r := range d.regs {
		if r.event == event {
			matched = append(matched, r.handler)
		}
	}
	d.logger.Debugf("broadcast %s to %d hooks", event, len(matched))
	for _, h := range matched {
		h(ev)
	}
}

// AddNPC binds a bar character to a mission and returns the binding id.
func (d *Dispatcher) AddNPC(owner OwnerID, name string) string {
	id := uuid.New().String()
	d.npcs = append(d.npcs, NPC{ID: id, Owner: owner, Name: name})
	return id
}

// NPCsForOwner lists the NPC bindings of a mission.
func (d *Dispatcher) NPCsForOwner(owner OwnerID) []NPC {
	var out []NPC
	for _, n := range d.npcs {
		if n.Owner == owner {
			out = append(out, n)
		}
	}
	return out
}

// RemoveNPCsForOwner deletes every NPC binding of a mission.
func (d *Dispatcher) RemoveNPCsForOwner(owner OwnerID) {
	kept := d.npcs[:0]
	for _, n := range d.npcs {
		if n.Owner != owner {
			kept = append(kept, n)
		}
	}
	d.npcs = kept
}

// HookCount returns the number of live registrations. Test helper.
func (d *Dispatcher) HookCount() int {
	return len(d.regs)
}
