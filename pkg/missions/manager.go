// Package missions implements the mission availability matcher, the
// probabilistic admission sampler, and the instance manager that owns the
// live mission list through creation, acceptance, running and cleanup.
package missions

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/starlance/starlance/pkg/catalog"
	"github.com/starlance/starlance/pkg/claims"
	"github.com/starlance/starlance/pkg/conditional"
	"github.com/starlance/starlance/pkg/hooks"
	"github.com/starlance/starlance/pkg/osd"
	"github.com/starlance/starlance/pkg/scripting"
	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

// Outcome is the integer result domain of creation/acceptance runs.
type Outcome int

// Outcome values.
const (
	// OutcomeScriptError: hard script failure; the instance was cleaned up.
	OutcomeScriptError Outcome = -1

	// OutcomeOK: normal completion; the instance proceeds to the next
	// lifecycle step.
	OutcomeOK Outcome = 0

	// OutcomeFinish: the script requested an early finish; the instance
	// was cleaned up.
	OutcomeFinish Outcome = 1

	// OutcomeDeleted: the script tore the instance down mid-run; the
	// caller must not touch it further.
	OutcomeDeleted Outcome = 2

	// OutcomeAccepted: accept step only; the mission is now live.
	OutcomeAccepted Outcome = 3
)

// Config tunes a Manager.
type Config struct {
	// Seed seeds the admission sampler. 0 means time-based.
	Seed int64

	// MaxScriptSteps bounds a single entry-point run. 0 means unbounded.
	MaxScriptSteps uint64
}

// Manager owns the authoritative live mission list plus the registries the
// missions lean on. All operations run on the simulation goroutine; the
// manager tolerates reentrancy (a create() may start another mission) but
// not concurrency.
type Manager struct {
	catalog *catalog.Catalog
	uni     *universe.Universe
	player  *Player
	eval    *conditional.Evaluator
	claims  *claims.Registry
	osd     *osd.Registry
	hooks   *hooks.Dispatcher
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
	rng     *rand.Rand

	live       []*Mission
	mapMarkers []MapMarker
	lastID     MissionID
	maxSteps   uint64
}

// MapMarker is one world-map annotation derived from a live mission.
type MapMarker struct {
	Mission MissionID
	Marker  Marker
}

// NewManager wires a manager over a loaded catalog.
func NewManager(cat *catalog.Catalog, uni *universe.Universe, player *Player, eval *conditional.Evaluator, tel *telemetry.Telemetry, cfg Config) *Manager {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Manager{
		catalog:  cat,
		uni:      uni,
		player:   player,
		eval:     eval,
		claims:   claims.NewRegistry(uni, tel.Logger),
		osd:      osd.NewRegistry(),
		hooks:    hooks.NewDispatcher(tel.Logger),
		tel:      tel,
		logger:   tel.Logger.NewComponentLogger("manager"),
		rng:      rand.New(rand.NewSource(seed)),
		maxSteps: cfg.MaxScriptSteps,
	}
}

// Catalog returns the template catalog.
func (mgr *Manager) Catalog() *catalog.Catalog { return mgr.catalog }

// Player returns the player state.
func (mgr *Manager) Player() *Player { return mgr.player }

// OSD returns the on-screen display registry.
func (mgr *Manager) OSD() *osd.Registry { return mgr.osd }

// Hooks returns the hook dispatcher.
func (mgr *Manager) Hooks() *hooks.Dispatcher { return mgr.hooks }

// ClaimRegistry returns the claim registry.
func (mgr *Manager) ClaimRegistry() *claims.Registry { return mgr.claims }

// Universe returns the reference catalogs.
func (mgr *Manager) Universe() *universe.Universe { return mgr.uni }

// Live returns the live mission list. The slice must not be mutated;
// ordering is acceptance order except where ShiftToEnd moved an entry.
func (mgr *Manager) Live() []*Mission { return mgr.live }

// NextID generates a fresh mission id, skipping any id already held by a
// live mission, including ones restored from a save load still in progress.
// Safe under reentrant calls during load.
func (mgr *Manager) NextID() MissionID {
	for {
		mgr.lastID++
		if mgr.lastID == 0 {
			mgr.lastID = 1
		}
		if !mgr.idInUse(mgr.lastID) {
			return mgr.lastID
		}
	}
}

func (mgr *Manager) idInUse(id MissionID) bool {
	for _, m := range mgr.live {
		if m.ID == id {
			return true
		}
	}
	return false
}

// NewInstance allocates a Mission bound to a template: environment created,
// mem table initialized, chunk executed to define entry points. No entry
// point has run yet. genID controls whether a process-unique id is assigned
// now (suppressed on the save-load path, which restores the saved id).
func (mgr *Manager) NewInstance(t *catalog.Template, genID bool) (*Mission, error) {
	m := &Mission{Template: t, mgr: mgr}
	if genID {
		m.ID = mgr.NextID()
	}
	m.env = scripting.NewEnv(t.Name, mgr.missionEnv(m), mgr.maxSteps)
	if err := m.env.LoadChunk(t.Chunk); err != nil {
		m.env.Close()
		m.env = nil
		return nil, NewEvalError("chunk execution failed", err).WithTemplate(t.Name)
	}
	return m, nil
}

// runEntry invokes a named entry point and maps the result into the Outcome
// domain. A missing entry point is OutcomeOK: templates routinely define
// only a subset of the lifecycle.
func (mgr *Manager) runEntry(m *Mission, entry string) Outcome {
	start := time.Now()
	_, span := mgr.tel.Tracer.StartMissionSpan(context.Background(), m.Template.Name, entry)
	defer span.End()

	_, err := m.env.Call(entry)
	mgr.tel.Metrics.RecordEntryPoint(entry, time.Since(start))

	if m.deleted {
		return OutcomeDeleted
	}
	switch {
	case err == nil:
		telemetry.RecordSuccess(span)
		return OutcomeOK
	case errors.Is(err, errFinish):
		if m.finishedDone {
			mgr.recordDone(m.Template)
		}
		telemetry.RecordSuccess(span)
		return OutcomeFinish
	case errors.Is(err, scripting.ErrNoEntry):
		telemetry.RecordSuccess(span)
		return OutcomeOK
	default:
		telemetry.RecordError(span, err)
		mgr.tel.Metrics.RecordError(string(ErrorClassEval))
		mgr.logger.WithTemplate(m.Template.Name).
			Errorf("%s failed: %s", entry, scripting.Backtrace(err))
		return OutcomeScriptError
	}
}

// RunCreate runs the creation entry point. On OutcomeScriptError and
// OutcomeFinish the instance has been cleaned up; on OutcomeDeleted the
// instance must not be touched.
func (mgr *Manager) RunCreate(m *Mission) Outcome {
	outcome := mgr.runEntry(m, "create")
	switch outcome {
	case OutcomeScriptError, OutcomeFinish:
		// accept() may already have put the instance on the live list.
		wasLive := m.Accepted
		mgr.Cleanup(m)
		if wasLive {
			mgr.dropFromLive(m)
			mgr.ClearAndRemarkAll()
		}
	}
	mgr.tel.Metrics.RecordMissionCreated(outcomeLabel(outcome))
	return outcome
}

// RunAccept runs the accept entry point for a player-facing instance. If
// the script confirmed via misn.accept() the mission is live and the result
// is OutcomeAccepted.
func (mgr *Manager) RunAccept(m *Mission) Outcome {
	outcome := mgr.runEntry(m, "accept")
	switch outcome {
	case OutcomeScriptError, OutcomeFinish:
		wasLive := m.Accepted
		mgr.Cleanup(m)
		if wasLive {
			mgr.dropFromLive(m)
			mgr.ClearAndRemarkAll()
		}
		return outcome
	case OutcomeDeleted:
		return outcome
	}
	if m.Accepted {
		return OutcomeAccepted
	}
	return outcome
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeScriptError:
		return "error"
	case OutcomeOK:
		return "ok"
	case OutcomeFinish:
		return "finished"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeAccepted:
		return "accepted"
	}
	return "unknown"
}

// acceptFromScript moves a mission onto the live list in response to
// misn.accept(). Idempotent within a single instance.
func (mgr *Manager) acceptFromScript(m *Mission) {
	if m.Accepted {
		return
	}
	if m.ID == 0 {
		old := hooks.OwnerID(0)
		m.ID = mgr.NextID()
		mgr.hooks.Rekey(old, hooks.OwnerID(m.ID))
	}
	m.Accepted = true
	mgr.live = append(mgr.live, m)
	mgr.tel.Metrics.RecordMissionAccepted()
	mgr.tel.Metrics.SetLiveMissions(len(mgr.live))
	mgr.hooks.Broadcast(hooks.EventMissionAccepted, map[string]interface{}{
		"template": m.Template.Name,
		"id":       uint32(m.ID),
	})
	mgr.ClearAndRemarkAll()
}

// InsertRestored appends a mission restored by the persistence adapter,
// without running any entry point. A zero or already-live saved id is
// renumbered; the id floor is raised so NextID never collides with restored
// ids.
func (mgr *Manager) InsertRestored(m *Mission) {
	if m.ID == 0 || mgr.idInUse(m.ID) {
		old := m.ID
		m.ID = mgr.NextID()
		mgr.logger.WithTemplate(m.Template.Name).
			Warnf("saved mission id %d invalid, renumbered to %d", uint32(old), uint32(m.ID))
	}
	m.Accepted = true
	mgr.live = append(mgr.live, m)
	if m.ID > mgr.lastID {
		mgr.lastID = m.ID
	}
	mgr.tel.Metrics.SetLiveMissions(len(mgr.live))
}

// dropFromLive removes a mission from the live list and refreshes the
// gauge. No-op when the mission is not on the list.
func (mgr *Manager) dropFromLive(m *Mission) {
	for i, live := range mgr.live {
		if live == m {
			mgr.live = append(mgr.live[:i], mgr.live[i+1:]...)
			break
		}
	}
	mgr.tel.Metrics.SetLiveMissions(len(mgr.live))
}

// recordDone permanently records a template's completion and broadcasts
// mission_done.
func (mgr *Manager) recordDone(t *catalog.Template) {
	if mgr.player.IsDone(t.Name) {
		return
	}
	mgr.player.MarkDone(t.Name)
	mgr.tel.Metrics.RecordMissionFinished("done")
	mgr.hooks.Broadcast(hooks.EventMissionDone, map[string]interface{}{
		"template": t.Name,
	})
}

// Cleanup releases everything a mission holds: hooks and NPC bindings,
// linked cargo, the OSD entry, the scripting environment, the claim set,
// then zeroes the struct. Idempotent: calling it on an already-zeroed
// mission does nothing harmful.
func (mgr *Manager) Cleanup(m *Mission) {
	if m == nil {
		return
	}

	if m.ID != 0 {
		mgr.hooks.RemoveAllForOwner(hooks.OwnerID(m.ID))
		mgr.hooks.RemoveNPCsForOwner(hooks.OwnerID(m.ID))
	}

	for _, cargoID := range m.Cargo {
		if !mgr.player.RemoveCargo(cargoID) {
			mgr.logger.WithMissionID(uint32(m.ID)).
				Debugf("linked cargo %d already gone", cargoID)
		}
	}
	m.Cargo = nil

	if m.OSD != 0 {
		mgr.osd.Destroy(m.OSD)
		m.OSD = 0
	}

	if m.env != nil {
		m.env.Close()
		m.env = nil
	}

	if m.Claims != nil {
		m.Claims.Destroy()
		m.Claims = nil
	}

	m.Title = ""
	m.Desc = ""
	m.Reward = ""
	m.RewardValue = 0
	m.Markers = nil
	m.Accepted = false
	m.ID = 0
}

// Abort is the always-available cancellation: cleanup plus removal from the
// live list. Safe to call from UI actions and from within the mission's own
// script (the instance is flagged deleted so the interrupted run backs out).
func (mgr *Manager) Abort(m *Mission) {
	m.deleted = true
	mgr.Cleanup(m)
	mgr.dropFromLive(m)
	mgr.tel.Metrics.RecordMissionFinished("aborted")
	mgr.hooks.Broadcast(hooks.EventMissionAborted, map[string]interface{}{
		"template": m.Template.Name,
	})
	mgr.ClearAndRemarkAll()
}

// Finish completes a live mission from engine code (the scripted path goes
// through misn.finish). done controls the permanent completion record.
func (mgr *Manager) Finish(m *Mission, done bool) {
	if done {
		mgr.recordDone(m.Template)
	}
	mgr.Cleanup(m)
	mgr.dropFromLive(m)
	mgr.ClearAndRemarkAll()
}

// ShiftToEnd moves the mission at index to the end of the live list without
// otherwise reordering, so removal mid-interaction doesn't shift other
// UI-visible indices.
func (mgr *Manager) ShiftToEnd(index int) {
	if index < 0 || index >= len(mgr.live) {
		return
	}
	m := mgr.live[index]
	mgr.live = append(append(mgr.live[:index], mgr.live[index+1:]...), m)
}

// ClearAndRemarkAll rebuilds the world-map marker state from the live list,
// skipping any mission whose id is still 0 (a half-initialized instance must
// not leak markers).
func (mgr *Manager) ClearAndRemarkAll() {
	mgr.mapMarkers = mgr.mapMarkers[:0]
	for _, m := range mgr.live {
		if m.ID == 0 {
			continue
		}
		for _, mk := range m.Markers {
			mgr.mapMarkers = append(mgr.mapMarkers, MapMarker{Mission: m.ID, Marker: mk})
		}
	}
}

// MapMarkers returns the current world-map marker state.
func (mgr *Manager) MapMarkers() []MapMarker {
	return mgr.mapMarkers
}

// ActivateClaims re-activates the claim sets of every live mission. Called
// after a save load, before gameplay resumes, in live-list order (which
// preserves the priority order claims were established in).
func (mgr *Manager) ActivateClaims() {
	for _, m := range mgr.live {
		if m.Claims != nil {
			m.Claims.Activate()
		}
	}
}

// MissionStart programmatically starts a mission by template name,
// bypassing availability filtering (the caller decided it should run). The
// background-spawn rule applies: the instance survives only if it accepted
// itself during create.
func (mgr *Manager) MissionStart(name string) (Outcome, error) {
	t, ok := mgr.catalog.Lookup(name)
	if !ok {
		return OutcomeScriptError, NewLoadError(fmt.Sprintf("unknown template %q", name), nil)
	}
	m, err := mgr.NewInstance(t, false)
	if err != nil {
		return OutcomeScriptError, err
	}
	outcome := mgr.RunCreate(m)
	if outcome == OutcomeOK && !m.Accepted {
		mgr.Cleanup(m)
	}
	return outcome, nil
}

// MissionTest programmatically probes whether a template's conditional gate
// passes right now, without structural location checks and without side
// effects.
func (mgr *Manager) MissionTest(name string) (bool, error) {
	t, ok := mgr.catalog.Lookup(name)
	if !ok {
		return false, NewLoadError(fmt.Sprintf("unknown template %q", name), nil)
	}
	return mgr.meetsConditionals(t), nil
}

// ReloadOne re-parses a single template in place. Live instances keep
// running on their old chunk; new instances pick up the reloaded one.
func (mgr *Manager) ReloadOne(name string) error {
	return mgr.catalog.ReloadOne(name)
}
