package lobby

import (
	"context"
	"strconv"

	"skirmish/lobby/logging"
)

// HostSettings is the host-authored session configuration that replicates
// through session-level keys alongside the simulation state.
type HostSettings struct {
	Name             string
	Hidden           bool
	HotJoin          bool
	NameTags         bool
	NameTagsTeamOnly bool
	Announcement     string
	BuildID          string
	Mods             []ContentID
	ModTotalSize     uint64
}

func teamLetter(team TeamID) string {
	if team == TeamRaven {
		return "R"
	}
	return "E"
}

func teamFromLetter(s string) TeamID {
	if s == "R" {
		return TeamRaven
	}
	return TeamEagle
}

// Replicator reconciles the simulation with the session store once per tick.
// The host serializes its state into the store; clients diff the store
// against the last values they applied and only touch the simulation on
// change. All writes go through the deduplicating session writer, so an
// unchanged value never hits the directory twice inside the debounce window.
type Replicator struct {
	st       *sessionState
	dir      Directory
	sim      HostSimulation
	codec    *codec
	writer   *sessionWriter
	settings *HostSettings
	log      logging.Publisher

	// onStartObserved fires once when a client sees started=yes.
	onStartObserved func()

	// lastApplied caches, per session key, the raw value most recently
	// applied to the local simulation. Client side only.
	lastApplied map[string]string

	// listsChanged marks the host's loadout lists dirty. Lists are encoded
	// only when dirty; scalars are cheap and re-encoded every tick.
	listsChanged bool

	// applyingRemote suppresses dirty-marking while remote values flow into
	// the simulation, so applying a change does not re-replicate it.
	applyingRemote bool

	// mapSwitched defers list application by one tick after a map change:
	// the prefab pools the list indices address are only valid once the new
	// map's content is in.
	mapSwitched bool

	previewDirty bool
}

func newReplicator(st *sessionState, dir Directory, sim HostSimulation, cdc *codec, writer *sessionWriter, settings *HostSettings, log logging.Publisher) *Replicator {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &Replicator{
		st:          st,
		dir:         dir,
		sim:         sim,
		codec:       cdc,
		writer:      writer,
		settings:    settings,
		log:         log,
		lastApplied: make(map[string]string),
	}
}

// MarkListsChanged flags the loadout lists dirty so the host re-encodes them
// next tick. No-op while remote state is being applied.
func (r *Replicator) MarkListsChanged() {
	if r.applyingRemote {
		return
	}
	r.listsChanged = true
}

// Reset clears the diff cache and dirty flags when leaving a session.
func (r *Replicator) Reset() {
	r.lastApplied = make(map[string]string)
	r.listsChanged = false
	r.mapSwitched = false
	r.previewDirty = false
}

// InvalidateLists drops the last-applied cache so the next apply pass replays
// every key. Called when content activation completes: values decoded before
// the session's pools were in place must be re-resolved against them.
func (r *Replicator) InvalidateLists() {
	r.lastApplied = make(map[string]string)
}

// Tick runs one reconciliation pass. Replication pauses during a match; the
// store is a lobby-configuration surface, not a gameplay channel. Clients
// apply nothing until their own loaded flag is up: decoding list indices
// against pools the content swap has not populated yet would drop entries.
func (r *Replicator) Tick() {
	if !r.st.InSession || !r.st.DataReady || r.st.InMatch {
		return
	}
	r.writer.SetMemberData(memberKeyTeam, teamLetter(r.sim.PlayerTeam()))
	if r.st.IsOwner() {
		r.publish()
		return
	}
	if r.dir.MemberData(r.st.ID, r.st.Local, memberKeyLoaded) != flagYes {
		return
	}
	r.apply()
}

// publish is the host branch: serialize local state into the store.
func (r *Replicator) publish() {
	r.publishSettings()
	r.publishScalars()
	if r.listsChanged {
		r.publishLists()
		r.listsChanged = false
	}
	r.publishAppearance()
	r.publishMutators()
}

func (r *Replicator) publishSettings() {
	s := r.settings
	r.writer.SetSessionData(keyLobbyName, s.Name)
	r.writer.SetSessionData(keyHidden, strconv.FormatBool(s.Hidden))
	r.writer.SetSessionData(keyHotjoin, strconv.FormatBool(s.HotJoin))
	r.writer.SetSessionData(keyNameTags, strconv.FormatBool(s.NameTags))
	r.writer.SetSessionData(keyNameTagsTeamOnly, strconv.FormatBool(s.NameTagsTeamOnly))
	r.writer.SetSessionData(keyAnnouncement, s.Announcement)
}

func (r *Replicator) publishScalars() {
	r.writer.SetSessionData(keyGameMode, strconv.Itoa(int(r.sim.GameMode())))
	r.writer.SetSessionData(keyNightMode, strconv.FormatBool(r.sim.NightMode()))
	r.writer.SetSessionData(keyBotsEagle, strconv.Itoa(r.sim.BotCount(TeamEagle)))
	r.writer.SetSessionData(keyBotsRaven, strconv.Itoa(r.sim.BotCount(TeamRaven)))
	r.writer.SetSessionData(keyRespawnTime, strconv.Itoa(r.sim.RespawnTime()))
	r.writer.SetSessionData(keyGameLength, strconv.Itoa(r.sim.GameLength()))
	current := r.sim.CurrentMap()
	r.writer.SetSessionData(keyMap, current.Name)
	r.writer.SetSessionData(keyIsOfficialMap, strconv.FormatBool(current.Official))
	if r.sim.GameMode() == GameModeSpecOps {
		r.writer.SetSessionData(keySessionTeam, teamLetter(r.sim.PlayerTeam()))
	}
}

func (r *Replicator) publishLists() {
	defVehicles, modVehicles := r.sim.DefaultVehicles(), r.sim.ModdedVehicles()
	defTurrets, modTurrets := r.sim.DefaultTurrets(), r.sim.ModdedTurrets()
	for _, team := range Teams {
		r.writer.SetSessionData(teamKey(team, "weapons"), r.codec.encodeTeamWeapons(r.sim.TeamWeapons(team)))
		for _, kind := range AllVehicleKinds {
			r.writer.SetSessionData(vehicleKey(team, kind),
				r.codec.encodePrefabSlot(r.sim.VehicleSlot(team, kind), defVehicles, modVehicles))
		}
		for _, kind := range AllTurretKinds {
			r.writer.SetSessionData(turretKey(team, kind),
				r.codec.encodePrefabSlot(r.sim.TurretSlot(team, kind), defTurrets, modTurrets))
		}
	}
	r.log.Publish(context.Background(), logging.Event{
		Type:     "loadout_published",
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
	})
}

func (r *Replicator) publishAppearance() {
	for _, team := range Teams {
		skin := ""
		if s := r.sim.TeamSkin(team); s != nil {
			skin = s.Name
		}
		r.writer.SetSessionData(teamKey(team, "skin"), skin)
		r.writer.SetSessionData(teamKey(team, "color"), r.sim.TeamColor(team))
		r.writer.SetSessionData(teamKey(team, "name"), r.sim.TeamName(team))
	}
}

func (r *Replicator) publishMutators() {
	mutators := r.sim.Mutators()
	r.writer.SetSessionData(keyMutators, r.codec.encodeMutators(mutators))
	for i, m := range mutators {
		if !m.Enabled || len(m.Fields) == 0 {
			continue
		}
		r.writer.SetSessionData(strconv.Itoa(i)+"config", r.codec.encodeMutatorConfig(m))
	}
}

// apply is the client branch: diff the store against lastApplied and push
// changes into the simulation.
func (r *Replicator) apply() {
	r.applyingRemote = true
	defer func() { r.applyingRemote = false }()

	r.checkStarted()

	// A map change invalidates the prefab pools, so the rest of this tick's
	// list application is deferred until the new pools are in place.
	if r.applyMap() {
		r.mapSwitched = true
		return
	}
	first := r.mapSwitched
	r.mapSwitched = false

	r.applyScalars()
	r.applyLists(first)
	r.applyAppearance()
	r.applyMutators()

	if r.previewDirty {
		r.sim.RefreshPreview()
		r.previewDirty = false
	}
}

// changed reads a session key and reports whether it differs from the last
// value applied, updating the cache when it does.
func (r *Replicator) changed(key string) (string, bool) {
	value := r.dir.SessionData(r.st.ID, key)
	if prev, seen := r.lastApplied[key]; seen && prev == value {
		return value, false
	}
	r.lastApplied[key] = value
	return value, true
}

func (r *Replicator) checkStarted() {
	if r.st.ReadyToPlay {
		return
	}
	if r.dir.SessionData(r.st.ID, keyStarted) != flagYes {
		return
	}
	r.st.ReadyToPlay = true
	// Bots are the host's to run; a client simulates none.
	r.sim.SetBotCount(TeamEagle, 0)
	r.sim.SetBotCount(TeamRaven, 0)
	if r.onStartObserved != nil {
		r.onStartObserved()
	}
}

// applyMap reconciles the selected map and reports whether it switched.
func (r *Replicator) applyMap() bool {
	name, nameChanged := r.changed(keyMap)
	official, officialChanged := r.changed(keyIsOfficialMap)
	if !nameChanged && !officialChanged {
		return false
	}
	if name == "" {
		return false
	}
	entry := MapEntry{Name: name, Official: official == "true"}
	if entry == r.sim.CurrentMap() {
		return false
	}
	if !r.sim.SelectMap(entry) {
		r.log.Publish(context.Background(), logging.Event{
			Type:     "map_unavailable",
			Severity: logging.SeverityWarn,
			Category: logging.CategoryReplication,
			Payload:  map[string]any{"map": name},
		})
		return false
	}
	return true
}

func (r *Replicator) applyScalars() {
	if raw, ok := r.changed(keyGameMode); ok {
		if mode, err := strconv.Atoi(raw); err == nil {
			r.sim.SetGameMode(GameMode(mode))
		}
	}
	if raw, ok := r.changed(keyNightMode); ok {
		r.sim.SetNightMode(raw == "true")
	}
	if raw, ok := r.changed(keyBotsEagle); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			r.sim.SetBotCount(TeamEagle, n)
		}
	}
	if raw, ok := r.changed(keyBotsRaven); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			r.sim.SetBotCount(TeamRaven, n)
		}
	}
	if raw, ok := r.changed(keyRespawnTime); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			r.sim.SetRespawnTime(n)
		}
	}
	if raw, ok := r.changed(keyGameLength); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			r.sim.SetGameLength(n)
		}
	}
	if r.sim.GameMode() == GameModeSpecOps {
		if raw, ok := r.changed(keySessionTeam); ok && raw != "" {
			// In spec ops the host's side decides everyone's side: players
			// are the attacking team, bots defend.
			r.sim.SetPlayerTeam(teamFromLetter(raw))
		}
	}
}

// applyLists diffs the loadout lists. force replays every list regardless of
// the cache, used on the first tick after a map switch.
func (r *Replicator) applyLists(force bool) {
	defVehicles, modVehicles := r.sim.DefaultVehicles(), r.sim.ModdedVehicles()
	defTurrets, modTurrets := r.sim.DefaultTurrets(), r.sim.ModdedTurrets()
	for _, team := range Teams {
		if raw, ok := r.changed(teamKey(team, "weapons")); ok || force {
			r.sim.SetTeamWeapons(team, r.codec.decodeTeamWeapons(raw))
		}
		for _, kind := range AllVehicleKinds {
			if raw, ok := r.changed(vehicleKey(team, kind)); ok || force {
				r.sim.SetVehicleSlot(team, kind, r.codec.decodePrefabSlot(raw, defVehicles, modVehicles))
				r.previewDirty = true
			}
		}
		for _, kind := range AllTurretKinds {
			if raw, ok := r.changed(turretKey(team, kind)); ok || force {
				r.sim.SetTurretSlot(team, kind, r.codec.decodePrefabSlot(raw, defTurrets, modTurrets))
				r.previewDirty = true
			}
		}
	}
}

func (r *Replicator) applyAppearance() {
	for _, team := range Teams {
		if raw, ok := r.changed(teamKey(team, "skin")); ok {
			if skin, found := r.sim.SkinByName(raw); found {
				r.sim.SetTeamSkin(team, skin)
			} else if raw == "" {
				r.sim.SetTeamSkin(team, nil)
			}
		}
		if raw, ok := r.changed(teamKey(team, "color")); ok && raw != "" {
			r.sim.SetTeamColor(team, raw)
		}
		if raw, ok := r.changed(teamKey(team, "name")); ok && raw != "" {
			r.sim.SetTeamName(team, raw)
		}
	}
}

func (r *Replicator) applyMutators() {
	mutators := r.sim.Mutators()
	if raw, ok := r.changed(keyMutators); ok {
		r.codec.decodeMutators(raw, mutators)
	}
	for i, m := range mutators {
		if !m.Enabled || len(m.Fields) == 0 {
			continue
		}
		if raw, ok := r.changed(strconv.Itoa(i) + "config"); ok {
			r.codec.decodeMutatorConfig(raw, m)
		}
	}
}
