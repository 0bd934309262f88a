package missions

import (
	"context"
	"sort"

	"github.com/starlance/starlance/pkg/catalog"
)

// SpawnParams decomposes a template's chance value into the number of
// independent spawn attempts and the per-attempt probability. Values over
// 100 grant guaranteed slots: chance 250 yields two certain attempts plus
// one at 50%. A remainder of 0 means a certain attempt, so plain chance 0
// behaves as 100% (the parser warns about it at load time).
func SpawnParams(chance int) (repeats int, p float64) {
	repeats = chance / 100
	if repeats < 1 {
		repeats = 1
	}
	p = float64(chance%100) / 100.0
	if p == 0 {
		p = 1.0
	}
	return repeats, p
}

// TriggerRun evaluates a trigger in the background flavor: for every
// eligible template, in priority order, roll the sampler and run creation
// for each accepted draw. Instances survive only if their script accepted
// itself during create; everything else is cleaned up. Returns the number
// of missions that went live.
func (mgr *Manager) TriggerRun(ctx context.Context, trig Trigger) int {
	_, span := mgr.tel.Tracer.StartTriggerSpan(ctx, trig.Location.String())
	defer span.End()

	spawned := 0
	for _, t := range mgr.EligibleTemplates(trig) {
		repeats, p := SpawnParams(t.Avail.Chance)
		for i := 0; i < repeats; i++ {
			hit := mgr.rng.Float64() < p
			mgr.tel.Metrics.RecordSpawnDraw(hit)
			if !hit {
				continue
			}
			if mgr.spawnOne(t) {
				spawned++
			}
			// Uniqueness may have flipped mid-trigger, either by a
			// permanent completion or by an instance going live.
			if t.Unique && (mgr.player.IsDone(t.Name) || mgr.AlreadyRunning(t) > 0) {
				break
			}
		}
	}
	return spawned
}

func (mgr *Manager) spawnOne(t *catalog.Template) bool {
	m, err := mgr.NewInstance(t, false)
	if err != nil {
		mgr.logger.WithTemplate(t.Name).WithError(err).
			Warn("instance setup failed")
		return false
	}
	outcome := mgr.RunCreate(m)
	switch outcome {
	case OutcomeScriptError, OutcomeFinish, OutcomeDeleted:
		return false
	}
	if m.Accepted {
		return true
	}
	// Background spawns have no separate accept step: a create that
	// returns without accepting declined the slot.
	mgr.Cleanup(m)
	return false
}

// Offer is one player-facing mission proposal: a transient instance whose
// creation ran so its title, description and reward are populated, but
// which is not yet live.
type Offer struct {
	Mission  *Mission
	Template *catalog.Template
}

// ComputerMissions evaluates a trigger in the player-facing flavor: every
// accepted draw yields a transient instance presented for browsing. The
// caller hands chosen offers to AcceptMission and the remainder to
// DiscardOffers. Offers are ordered by template priority, ties broken by
// name for stable listings.
func (mgr *Manager) ComputerMissions(ctx context.Context, trig Trigger) []Offer {
	_, span := mgr.tel.Tracer.StartTriggerSpan(ctx, trig.Location.String())
	defer span.End()

	var offers []Offer
	for _, t := range mgr.EligibleTemplates(trig) {
		repeats, p := SpawnParams(t.Avail.Chance)
		for i := 0; i < repeats; i++ {
			hit := mgr.rng.Float64() < p
			mgr.tel.Metrics.RecordSpawnDraw(hit)
			if !hit {
				continue
			}
			m, err := mgr.NewInstance(t, false)
			if err != nil {
				mgr.logger.WithTemplate(t.Name).WithError(err).
					Warn("instance setup failed")
				continue
			}
			outcome := mgr.RunCreate(m)
			if outcome != OutcomeOK {
				if t.Unique && mgr.player.IsDone(t.Name) {
					break
				}
				continue
			}
			if m.Accepted {
				// Rare but legal: a browsable mission accepted
				// itself during create. It is live already and
				// must not also appear as an offer.
				if t.Unique {
					break
				}
				continue
			}
			offers = append(offers, Offer{Mission: m, Template: t})
			if t.Unique {
				break
			}
		}
	}
	sort.SliceStable(offers, func(i, j int) bool {
		a, b := offers[i].Template, offers[j].Template
		if a.Avail.Priority != b.Avail.Priority {
			return a.Avail.Priority < b.Avail.Priority
		}
		return a.Name < b.Name
	})
	return offers
}

// AcceptMission runs the accept step on a browsed offer. On OutcomeAccepted
// the mission is live; on every other outcome the instance is gone and the
// offer must be dropped.
func (mgr *Manager) AcceptMission(offer Offer) Outcome {
	return mgr.RunAccept(offer.Mission)
}

// DiscardOffers disposes of the offers the player walked away from.
func (mgr *Manager) DiscardOffers(offers []Offer) {
	for _, o := range offers {
		if o.Mission.Accepted || o.Mission.deleted {
			continue
		}
		mgr.Cleanup(o.Mission)
	}
}
