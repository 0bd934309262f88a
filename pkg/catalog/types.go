package catalog

import (
	"fmt"
	"regexp"

	"github.com/starlance/starlance/pkg/conditional"
	"github.com/starlance/starlance/pkg/scripting"
)

// Location is the trigger class that may spawn a template.
type Location int

// Location values. Unset is the invalid/loading-error state, distinct from
// None (a template only ever started programmatically).
const (
	LocationUnset Location = iota
	LocationNone
	LocationComputer
	LocationBar
	LocationLand
	LocationEnter
)

var locationNames = map[Location]string{
	LocationUnset:    "Unset",
	LocationNone:     "None",
	LocationComputer: "Computer",
	LocationBar:      "Bar",
	LocationLand:     "Land",
	LocationEnter:    "Enter",
}

// String returns the canonical location token.
func (l Location) String() string {
	if s, ok := locationNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Location(%d)", int(l))
}

// ParseLocation converts a header token to a Location.
func ParseLocation(s string) (Location, error) {
	switch s {
	case "None":
		return LocationNone, nil
	case "Computer":
		return LocationComputer, nil
	case "Bar":
		return LocationBar, nil
	case "Land":
		return LocationLand, nil
	case "Enter":
		return LocationEnter, nil
	}
	return LocationUnset, fmt.Errorf("unknown location %q", s)
}

// Availability is a template's structural spawn requirements.
type Availability struct {
	// Location is the trigger class.
	Location Location

	// Chance is the spawn chance in percent. Values above 100 mean
	// floor(chance/100) guaranteed draws plus a chance%100 draw.
	Chance int

	// Spob and System are optional exact-name filters.
	Spob   string
	System string

	// ChapterRaw and Chapter filter on the player's chapter string. A nil
	// Chapter with a non-empty ChapterRaw means the pattern failed to
	// compile; the template then never matches.
	ChapterRaw string
	Chapter    *regexp.Regexp

	// Factions is the set of faction ids the trigger faction must belong
	// to. Empty means any faction matches.
	Factions map[int]bool

	// CondRaw is the conditional fragment; Cond is the compiled predicate.
	// A nil Cond with a non-empty CondRaw means compilation failed at load
	// time and the template is permanently rejected until reloaded.
	CondRaw string
	Cond    *conditional.Predicate

	// Prerequisite names a template that must be recorded completed.
	Prerequisite string

	// Priority orders templates; lower is more important.
	Priority int
}

// Template is an immutable-after-load mission definition.
type Template struct {
	// Name is the unique template key.
	Name string

	// Filename is the source path, kept for error reporting and reloads.
	Filename string

	// Source is the scripting body text.
	Source string

	// Chunk is the loaded-but-not-executed scripting unit.
	Chunk *scripting.Chunk

	// Unique marks a template that may run at most once per save, ever.
	Unique bool

	// Avail is the availability block.
	Avail Availability

	// Tags are free-form labels.
	Tags map[string]bool
}

// HasTag reports whether the template carries a tag.
func (t *Template) HasTag(tag string) bool {
	return t.Tags[tag]
}
