package missions

import (
	"github.com/starlance/starlance/pkg/catalog"
	"github.com/starlance/starlance/pkg/universe"
)

// Trigger is a location event that may spawn missions: landing, entering a
// bar, jumping into a system.
type Trigger struct {
	// Location is the trigger class.
	Location catalog.Location

	// Faction is the faction of the trigger context, if known.
	Faction *int

	// Spob is the spob the trigger happened at, if any.
	Spob *universe.Spob

	// System is the system the trigger happened in, if any.
	System *universe.System
}

// IsEligible reports whether a template structurally matches a trigger.
// Pure: calling it twice with identical inputs yields identical results and
// mutates nothing. Checks run cheapest-first and short-circuit; the
// conditional compiler is only consulted once everything structural passed.
func (mgr *Manager) IsEligible(t *catalog.Template, trig Trigger) bool {
	av := &t.Avail

	if av.Location != trig.Location {
		return false
	}

	if av.Spob != "" {
		if trig.Spob == nil || trig.Spob.Name != av.Spob {
			return false
		}
	} else if trig.Spob != nil && trig.Spob.NoMissions {
		return false
	}

	if av.System != "" {
		if trig.System == nil || trig.System.Name != av.System {
			return false
		}
	}

	if len(av.Factions) > 0 {
		if trig.Faction == nil || !av.Factions[*trig.Faction] {
			return false
		}
	}

	return mgr.meetsConditionals(t)
}

// meetsConditionals applies the expensive gates: chapter pattern,
// uniqueness, custom conditional, prerequisite.
func (mgr *Manager) meetsConditionals(t *catalog.Template) bool {
	av := &t.Avail

	if av.ChapterRaw != "" {
		if av.Chapter == nil {
			// Pattern failed to compile at load; fail closed.
			return false
		}
		if !av.Chapter.MatchString(mgr.player.Chapter) {
			return false
		}
	}

	if t.Unique {
		if mgr.player.IsDone(t.Name) || mgr.AlreadyRunning(t) > 0 {
			return false
		}
	}

	if av.CondRaw != "" {
		if av.Cond == nil {
			// Compile failed at load time: permanently reject until a
			// successful reload.
			return false
		}
		ok, err := mgr.eval.CheckCompiled(av.Cond)
		if err != nil {
			mgr.logger.WithTemplate(t.Name).WithError(err).Warn("conditional evaluation failed")
			mgr.tel.Metrics.RecordError(string(ErrorClassEval))
			return false
		}
		if !ok {
			return false
		}
	}

	if av.Prerequisite != "" && !mgr.player.IsDone(av.Prerequisite) {
		return false
	}

	return true
}

// EligibleTemplates filters the catalog against a trigger, in priority
// order.
func (mgr *Manager) EligibleTemplates(trig Trigger) []*catalog.Template {
	var out []*catalog.Template
	for _, t := range mgr.catalog.Templates() {
		if mgr.IsEligible(t, trig) {
			out = append(out, t)
		}
	}
	mgr.tel.Metrics.RecordTrigger(trig.Location.String(), len(out))
	return out
}

// AlreadyRunning counts live instances of a template.
func (mgr *Manager) AlreadyRunning(t *catalog.Template) int {
	n := 0
	for _, m := range mgr.live {
		if m.Template == t {
			n++
		}
	}
	return n
}
