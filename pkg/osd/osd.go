// Package osd tracks the per-mission objectives widget entries. The engine
// only creates, mutates and destroys entries; rendering happens elsewhere.
package osd

// ID identifies an on-screen display entry. 0 means "none".
type ID uint32

// Entry is the state behind one objectives widget.
type Entry struct {
	Title    string
	Items    []string
	Active   int
	Hidden   bool
	Priority int
}

// Registry owns the live OSD entries.
type Registry struct {
	next    ID
	entries map[ID]*Entry
}

// NewRegistry creates an empty OSD registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]*Entry)}
}

// Create adds an entry and returns its id.
func (r *Registry) Create(title string, items []string, priority int) ID {
	r.next++
	r.entries[r.next] = &Entry{
		Title:    title,
		Items:    append([]string(nil), items...),
		Priority: priority,
	}
	return r.next
}

// Destroy removes an entry. Unknown ids (including 0) are ignored.
func (r *Registry) Destroy(id ID) {
	delete(r.entries, id)
}

// Get returns the entry for id.
func (r *Registry) Get(id ID) (*Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// SetActive marks the objective at index as the current one.
func (r *Registry) SetActive(id ID, index int) {
	if e, ok := r.entries[id]; ok && index >= 0 && index < len(e.Items) {
		e.Active = index
	}
}

// SetHidden hides or shows an entry.
func (r *Registry) SetHidden(id ID, hidden bool) {
	if e, ok := r.entries[id]; ok {
		e.Hidden = hidden
	}
}

// SetPriority overrides the display ordering priority.
func (r *Registry) SetPriority(id ID, priority int) {
	if e, ok := r.entries[id]; ok {
		e.Priority = priority
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	return len(r.entries)
}
