package missions

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/starlance/starlance/pkg/hooks"
	"github.com/starlance/starlance/pkg/osd"
	"github.com/starlance/starlance/pkg/scripting"
)

// errFinish is the unwind sentinel raised by misn.finish(). It travels up
// the interpreter as an ordinary error and is recognized by runEntry.
var errFinish = errors.New("mission finish requested")

// PlayerEnv builds the read-only "player" scripting module. The same module
// backs mission environments and the shared conditional environment.
func PlayerEnv(mgr *Manager) starlark.StringDict {
	p := mgr.player
	module := &starlarkstruct.Module{
		Name: "player",
		Members: starlark.StringDict{
			"chapter": starlark.NewBuiltin("chapter", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				return starlark.String(p.Chapter), nil
			}),
			"mission_done": starlark.NewBuiltin("mission_done", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var name string
				if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
					return nil, err
				}
				return starlark.Bool(p.IsDone(name)), nil
			}),
			"mission_running": starlark.NewBuiltin("mission_running", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var name string
				if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
					return nil, err
				}
				t, ok := mgr.catalog.Lookup(name)
				if !ok {
					return starlark.MakeInt(0), nil
				}
				return starlark.MakeInt(mgr.AlreadyRunning(t)), nil
			}),
		},
	}
	return starlark.StringDict{"player": module}
}

// missionEnv builds the per-mission "misn" module plus the shared player
// module. Every builtin closes over exactly one Mission.
func (mgr *Manager) missionEnv(m *Mission) starlark.StringDict {
	env := PlayerEnv(mgr)
	env["misn"] = &starlarkstruct.Module{
		Name: "misn",
		Members: starlark.StringDict{
			"set_title":    starlark.NewBuiltin("set_title", m.builtinSetTitle),
			"set_desc":     starlark.NewBuiltin("set_desc", m.builtinSetDesc),
			"set_reward":   starlark.NewBuiltin("set_reward", m.builtinSetReward),
			"accept":       starlark.NewBuiltin("accept", m.builtinAccept),
			"finish":       starlark.NewBuiltin("finish", m.builtinFinish),
			"marker_add":   starlark.NewBuiltin("marker_add", m.builtinMarkerAdd),
			"marker_rm":    starlark.NewBuiltin("marker_rm", m.builtinMarkerRm),
			"osd_create":   starlark.NewBuiltin("osd_create", m.builtinOsdCreate),
			"osd_destroy":  starlark.NewBuiltin("osd_destroy", m.builtinOsdDestroy),
			"osd_active":   starlark.NewBuiltin("osd_active", m.builtinOsdActive),
			"osd_hidden":   starlark.NewBuiltin("osd_hidden", m.builtinOsdHidden),
			"osd_priority": starlark.NewBuiltin("osd_priority", m.builtinOsdPriority),
			"cargo_add":    starlark.NewBuiltin("cargo_add", m.builtinCargoAdd),
			"cargo_rm":     starlark.NewBuiltin("cargo_rm", m.builtinCargoRm),
			"claim":        starlark.NewBuiltin("claim", m.builtinClaim),
			"npc_add":      starlark.NewBuiltin("npc_add", m.builtinNpcAdd),
			"hook":         starlark.NewBuiltin("hook", m.builtinHook),
			"start":        starlark.NewBuiltin("start", m.builtinStart),
			"test":         starlark.NewBuiltin("test", m.builtinTest),
			"reload":       starlark.NewBuiltin("reload", m.builtinReload),
		},
	}
	return env
}

func (m *Mission) builtinSetTitle(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var title string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "title", &title); err != nil {
		return nil, err
	}
	m.Title = title
	return starlark.None, nil
}

func (m *Mission) builtinSetDesc(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var desc string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "desc", &desc); err != nil {
		return nil, err
	}
	m.Desc = desc
	return starlark.None, nil
}

func (m *Mission) builtinSetReward(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var reward string
	var value int64
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "reward", &reward, "value?", &value); err != nil {
		return nil, err
	}
	m.Reward = reward
	m.RewardValue = value
	return starlark.None, nil
}

func (m *Mission) builtinAccept(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	m.mgr.acceptFromScript(m)
	return starlark.Bool(true), nil
}

func (m *Mission) builtinFinish(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var done bool
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "done?", &done); err != nil {
		return nil, err
	}
	m.finished = true
	m.finishedDone = done
	return nil, errFinish
}

func (m *Mission) builtinMarkerAdd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var kind, name string
	tier := "high"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "kind", &kind, "name", &name, "tier?", &tier); err != nil {
		return nil, err
	}
	k, err := ParseTargetKind(kind)
	if err != nil {
		return nil, err
	}
	t, err := ParseTier(tier)
	if err != nil {
		return nil, err
	}
	id := m.AddMarker(nil, Target{Kind: k, Name: name}, t)
	m.mgr.ClearAndRemarkAll()
	return starlark.MakeInt64(int64(id)), nil
}

func (m *Mission) builtinMarkerRm(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id int64
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
		return nil, err
	}
	removed := m.RemoveMarker(uint32(id))
	if removed {
		m.mgr.ClearAndRemarkAll()
	}
	return starlark.Bool(removed), nil
}

func (m *Mission) builtinOsdCreate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var title string
	var items *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "title", &title, "items", &items); err != nil {
		return nil, err
	}
	strs := make([]string, 0, items.Len())
	for i := 0; i < items.Len(); i++ {
		s, ok := starlark.AsString(items.Index(i))
		if !ok {
			return nil, fmt.Errorf("osd_create: item %d is not a string", i)
		}
		strs = append(strs, s)
	}
	if m.OSD != 0 {
		m.mgr.osd.Destroy(m.OSD)
	}
	m.OSD = m.mgr.osd.Create(title, strs, m.Template.Avail.Priority)
	return starlark.MakeInt64(int64(m.OSD)), nil
}

func (m *Mission) builtinOsdDestroy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	if m.OSD != 0 {
		m.mgr.osd.Destroy(m.OSD)
		m.OSD = 0
	}
	return starlark.None, nil
}

func (m *Mission) builtinOsdActive(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var index int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "index", &index); err != nil {
		return nil, err
	}
	m.mgr.osd.SetActive(m.OSD, index)
	return starlark.None, nil
}

func (m *Mission) builtinOsdHidden(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var hidden bool
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "hidden", &hidden); err != nil {
		return nil, err
	}
	m.mgr.osd.SetHidden(m.OSD, hidden)
	return starlark.None, nil
}

func (m *Mission) builtinOsdPriority(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var priority int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "priority", &priority); err != nil {
		return nil, err
	}
	m.mgr.osd.SetPriority(m.OSD, priority)
	return starlark.None, nil
}

func (m *Mission) builtinCargoAdd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var commodity string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "commodity", &commodity); err != nil {
		return nil, err
	}
	id := m.mgr.player.AddCargo(commodity)
	m.LinkCargo(id)
	return starlark.MakeInt64(int64(id)), nil
}

func (m *Mission) builtinCargoRm(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id int64
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
		return nil, err
	}
	if !m.UnlinkCargo(uint64(id)) {
		return starlark.Bool(false), nil
	}
	return starlark.Bool(m.mgr.player.RemoveCargo(uint64(id))), nil
}

// builtinClaim reserves the listed targets. Names that resolve to systems
// become system claims, anything else a string claim. Returns False on
// conflict, leaving no reservation behind.
func (m *Mission) builtinClaim(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var targets *starlark.List
	exclusive := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "targets", &targets, "exclusive?", &exclusive); err != nil {
		return nil, err
	}
	set := m.mgr.claims.Create(exclusive)
	for i := 0; i < targets.Len(); i++ {
		s, ok := starlark.AsString(targets.Index(i))
		if !ok {
			return nil, fmt.Errorf("claim: target %d is not a string", i)
		}
		if _, isSys := m.mgr.uni.GetSystem(s); isSys {
			set.AddSystem(s)
		} else {
			set.AddString(s)
		}
	}
	if !set.Test() {
		return starlark.Bool(false), nil
	}
	set.Activate()
	if m.Claims != nil {
		m.Claims.Destroy()
	}
	m.Claims = set
	return starlark.Bool(true), nil
}

func (m *Mission) builtinNpcAdd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	id := m.mgr.hooks.AddNPC(hooks.OwnerID(m.ID), name)
	return starlark.String(id), nil
}

// builtinHook registers a named-event hook that re-enters this mission's
// environment at the given entry point.
func (m *Mission) builtinHook(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var event, entry string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "event", &event, "entry", &entry); err != nil {
		return nil, err
	}
	mgr := m.mgr
	id := mgr.hooks.Register(hooks.OwnerID(m.ID), event, func(ev hooks.Event) {
		if m.env == nil || m.env.Closed() {
			return
		}
		data, err := scripting.ToStarlark(ev.Data)
		if err != nil {
			mgr.logger.WithTemplate(m.Template.Name).WithError(err).
				Warnf("hook %s: bad event payload", entry)
			return
		}
		if _, err := m.env.Call(entry, data); err != nil && !errors.Is(err, errFinish) {
			mgr.logger.WithTemplate(m.Template.Name).WithError(err).
				Warnf("hook %s failed", entry)
		}
		if m.finished && !m.deleted {
			mgr.Finish(m, m.finishedDone)
		}
	})
	return starlark.String(id), nil
}

func (m *Mission) builtinStart(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	outcome, err := m.mgr.MissionStart(name)
	if err != nil {
		return nil, err
	}
	return starlark.MakeInt(int(outcome)), nil
}

func (m *Mission) builtinTest(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	ok, err := m.mgr.MissionTest(name)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(ok), nil
}

func (m *Mission) builtinReload(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	if err := m.mgr.ReloadOne(name); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// osdEntry returns the OSD entry backing this mission, if any.
func (m *Mission) osdEntry() (*osd.Entry, bool) {
	if m.OSD == 0 {
		return nil, false
	}
	return m.mgr.osd.Get(m.OSD)
}
