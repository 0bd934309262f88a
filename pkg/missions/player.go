package missions

import "sort"

// Player holds the slice of player state the mission engine reads and
// mutates: the chapter string, the permanent template-completion record, and
// the live cargo inventory that missions link instances into.
type Player struct {
	// Chapter is the current chapter string matched by template chapter
	// patterns.
	Chapter string

	done      map[string]bool
	cargo     map[uint64]string
	nextCargo uint64
}

// NewPlayer creates a player in the given chapter with nothing completed.
func NewPlayer(chapter string) *Player {
	return &Player{
		Chapter: chapter,
		done:    make(map[string]bool),
		cargo:   make(map[uint64]string),
	}
}

// MarkDone records a template as permanently completed.
func (p *Player) MarkDone(template string) {
	p.done[template] = true
}

// IsDone reports whether a template is recorded completed.
func (p *Player) IsDone(template string) bool {
	return p.done[template]
}

// Done returns the completion record, sorted for stable saves.
func (p *Player) Done() []string {
	out := make([]string, 0, len(p.done))
	for name := range p.done {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RestoreDone replaces the completion record from a save.
func (p *Player) RestoreDone(names []string) {
	p.done = make(map[string]bool, len(names))
	for _, name := range names {
		p.done[name] = true
	}
}

// AddCargo creates a cargo instance in the player inventory and returns its
// id.
func (p *Player) AddCargo(commodity string) uint64 {
	p.nextCargo++
	p.cargo[p.nextCargo] = commodity
	return p.nextCargo
}

// RestoreCargo re-creates a cargo instance with a known id from a save.
func (p *Player) RestoreCargo(id uint64, commodity string) {
	p.cargo[id] = commodity
	if id > p.nextCargo {
		p.nextCargo = id
	}
}

// RemoveCargo deletes a cargo instance. Reports whether it existed.
func (p *Player) RemoveCargo(id uint64) bool {
	if _, ok := p.cargo[id]; !ok {
		return false
	}
	delete(p.cargo, id)
	return true
}

// CargoCommodity returns the commodity of a cargo instance.
func (p *Player) CargoCommodity(id uint64) (string, bool) {
	c, ok := p.cargo[id]
	return c, ok
}
