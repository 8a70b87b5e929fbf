package lobby

import (
	"fmt"
	"sort"
)

// LocalSimulation is a self-contained HostSimulation used by the standalone
// daemon and the tests. It keeps every replicated field in plain structs and
// implements the pool contracts exactly: modded pools stay sorted by name so
// index-based replication is stable across peers.
type LocalSimulation struct {
	mode        GameMode
	night       bool
	bots        [teamCount]int
	respawnTime int
	gameLength  int
	playerTeam  TeamID

	maps    []MapEntry
	current int

	weapons     map[int]*WeaponEntry
	skins       map[string]*Skin
	mutators    []*Mutator
	defVehicles []*Prefab
	modVehicles []*Prefab
	defTurrets  []*Prefab
	modTurrets  []*Prefab

	teamWeapons  [teamCount][]TieredWeapon
	vehicleSlots [teamCount]map[VehicleKind][]TieredPrefab
	turretSlots  [teamCount]map[TurretKind][]TieredPrefab
	teamSkins    [teamCount]*Skin
	teamColors   [teamCount]string
	teamNames    [teamCount]string

	nameTags         bool
	nameTagsTeamOnly bool
	matchRunning     bool
	previewRefreshes int
	killed           []string
	actors           map[string]bool
}

func NewLocalSimulation() *LocalSimulation {
	s := &LocalSimulation{
		respawnTime: 5,
		gameLength:  1,
		weapons:     make(map[int]*WeaponEntry),
		skins:       make(map[string]*Skin),
		actors:      make(map[string]bool),
		maps:        []MapEntry{{Name: "archipelago", Official: true}},
		teamColors:  [teamCount]string{"2d56a3", "a32d2d"},
		teamNames:   [teamCount]string{"Eagle", "Raven"},
		nameTags:    true,
	}
	for i := range s.vehicleSlots {
		s.vehicleSlots[i] = make(map[VehicleKind][]TieredPrefab)
		s.turretSlots[i] = make(map[TurretKind][]TieredPrefab)
	}
	return s
}

// Pool registration, used when assembling content before a session.

func (s *LocalSimulation) AddWeapon(w *WeaponEntry) { s.weapons[w.NameHash] = w }
func (s *LocalSimulation) AddSkin(sk *Skin)         { s.skins[sk.Name] = sk }
func (s *LocalSimulation) AddMap(entry MapEntry)    { s.maps = append(s.maps, entry) }
func (s *LocalSimulation) AddActor(name string)     { s.actors[name] = true }

// AddMutator keeps the pool sorted by name so the replicated enable indices
// agree between peers that registered mutators in different orders.
func (s *LocalSimulation) AddMutator(m *Mutator) {
	s.mutators = append(s.mutators, m)
	sort.Slice(s.mutators, func(i, j int) bool { return s.mutators[i].Name < s.mutators[j].Name })
}

func (s *LocalSimulation) AddDefaultVehicle(p *Prefab) { s.defVehicles = append(s.defVehicles, p) }
func (s *LocalSimulation) AddDefaultTurret(p *Prefab)  { s.defTurrets = append(s.defTurrets, p) }

func (s *LocalSimulation) AddModdedVehicle(p *Prefab) {
	s.modVehicles = insertSorted(s.modVehicles, p)
}

func (s *LocalSimulation) AddModdedTurret(p *Prefab) {
	s.modTurrets = insertSorted(s.modTurrets, p)
}

func insertSorted(pool []*Prefab, p *Prefab) []*Prefab {
	pool = append(pool, p)
	sort.Slice(pool, func(i, j int) bool { return pool[i].Name < pool[j].Name })
	return pool
}

// HostSimulation pools.

func (s *LocalSimulation) DefaultVehicles() []*Prefab { return s.defVehicles }
func (s *LocalSimulation) ModdedVehicles() []*Prefab  { return s.modVehicles }
func (s *LocalSimulation) DefaultTurrets() []*Prefab  { return s.defTurrets }
func (s *LocalSimulation) ModdedTurrets() []*Prefab   { return s.modTurrets }

func (s *LocalSimulation) WeaponByHash(hash int) (*WeaponEntry, bool) {
	w, ok := s.weapons[hash]
	return w, ok
}

func (s *LocalSimulation) SkinByName(name string) (*Skin, bool) {
	sk, ok := s.skins[name]
	return sk, ok
}

func (s *LocalSimulation) Mutators() []*Mutator { return s.mutators }

// Scalars.

func (s *LocalSimulation) GameMode() GameMode        { return s.mode }
func (s *LocalSimulation) SetGameMode(mode GameMode) { s.mode = mode }
func (s *LocalSimulation) NightMode() bool           { return s.night }
func (s *LocalSimulation) SetNightMode(night bool)   { s.night = night }

func (s *LocalSimulation) BotCount(team TeamID) int { return s.bots[team] }
func (s *LocalSimulation) SetBotCount(team TeamID, count int) {
	if count < 0 {
		count = 0
	}
	s.bots[team] = count
}

func (s *LocalSimulation) RespawnTime() int           { return s.respawnTime }
func (s *LocalSimulation) SetRespawnTime(seconds int) { s.respawnTime = seconds }
func (s *LocalSimulation) GameLength() int            { return s.gameLength }
func (s *LocalSimulation) SetGameLength(length int)   { s.gameLength = length }

func (s *LocalSimulation) CurrentMap() MapEntry { return s.maps[s.current] }

func (s *LocalSimulation) SelectMap(entry MapEntry) bool {
	for i, m := range s.maps {
		if m == entry {
			s.current = i
			return true
		}
	}
	return false
}

func (s *LocalSimulation) PlayerTeam() TeamID        { return s.playerTeam }
func (s *LocalSimulation) SetPlayerTeam(team TeamID) { s.playerTeam = team }

// Composite lists.

func (s *LocalSimulation) TeamWeapons(team TeamID) []TieredWeapon { return s.teamWeapons[team] }
func (s *LocalSimulation) SetTeamWeapons(team TeamID, entries []TieredWeapon) {
	s.teamWeapons[team] = entries
}

func (s *LocalSimulation) VehicleSlot(team TeamID, kind VehicleKind) []TieredPrefab {
	return s.vehicleSlots[team][kind]
}

func (s *LocalSimulation) SetVehicleSlot(team TeamID, kind VehicleKind, entries []TieredPrefab) {
	s.vehicleSlots[team][kind] = entries
}

func (s *LocalSimulation) TurretSlot(team TeamID, kind TurretKind) []TieredPrefab {
	return s.turretSlots[team][kind]
}

func (s *LocalSimulation) SetTurretSlot(team TeamID, kind TurretKind, entries []TieredPrefab) {
	s.turretSlots[team][kind] = entries
}

func (s *LocalSimulation) TeamSkin(team TeamID) *Skin          { return s.teamSkins[team] }
func (s *LocalSimulation) SetTeamSkin(team TeamID, skin *Skin) { s.teamSkins[team] = skin }
func (s *LocalSimulation) TeamColor(team TeamID) string        { return s.teamColors[team] }
func (s *LocalSimulation) SetTeamColor(team TeamID, hex string) {
	s.teamColors[team] = hex
}
func (s *LocalSimulation) TeamName(team TeamID) string { return s.teamNames[team] }
func (s *LocalSimulation) SetTeamName(team TeamID, name string) {
	s.teamNames[team] = name
}

// Match control.

func (s *LocalSimulation) RefreshPreview() { s.previewRefreshes++ }
func (s *LocalSimulation) StartMatch()     { s.matchRunning = true }
func (s *LocalSimulation) EndMatch()       { s.matchRunning = false }
func (s *LocalSimulation) MatchRunning() bool {
	return s.matchRunning
}

func (s *LocalSimulation) SetNameTags(enabled, teamOnly bool) {
	s.nameTags = enabled
	s.nameTagsTeamOnly = teamOnly
}

func (s *LocalSimulation) NameTags() (enabled, teamOnly bool) {
	return s.nameTags, s.nameTagsTeamOnly
}

func (s *LocalSimulation) KillActor(name string) error {
	if !s.matchRunning {
		return fmt.Errorf("no match running")
	}
	if !s.actors[name] {
		return fmt.Errorf("no actor named %q", name)
	}
	s.killed = append(s.killed, name)
	return nil
}

// Killed lists actors removed with KillActor, oldest first.
func (s *LocalSimulation) Killed() []string { return s.killed }
