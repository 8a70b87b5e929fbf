package lobby

// TeamID indexes the two playable factions.
type TeamID int

const (
	TeamEagle TeamID = iota
	TeamRaven
)

const teamCount = 2

// Teams lists the replicated team indices in write order.
var Teams = [teamCount]TeamID{TeamEagle, TeamRaven}

// GameMode mirrors the simulation's mode selector; the numeric value is what
// gets replicated.
type GameMode int

const (
	GameModeBattalion GameMode = iota
	GameModeSkirmish
	GameModeSpecOps
)

// RarityTier tags a loadout entry with its spawn-weight class.
type RarityTier int

// Prefab is a spawnable simulation asset. Pool membership is by pointer
// identity, matching how the simulation itself tracks prefabs.
type Prefab struct {
	Name string
}

// TieredPrefab pairs a prefab with the tier it occupies in a slot.
type TieredPrefab struct {
	Prefab *Prefab
	Tier   RarityTier
}

// WeaponEntry is one entry of the simulation's weapon pool. NameHash is the
// stable identity used on the wire.
type WeaponEntry struct {
	Name     string
	NameHash int
}

// TieredWeapon pairs a weapon entry with its assigned tier.
type TieredWeapon struct {
	Entry *WeaponEntry
	Tier  RarityTier
}

// Skin is a replicated actor skin, identified by name.
type Skin struct {
	Name string
}

// MutatorField serializes one configurable field of a mutator.
type MutatorField interface {
	Serialize() string
	Deserialize(value string) error
}

// Mutator is a gameplay modifier with optional configuration fields.
type Mutator struct {
	Name    string
	Enabled bool
	Fields  []MutatorField
}

// VehicleKind names a vehicle spawn slot.
type VehicleKind string

const (
	VehicleTransport VehicleKind = "Transport"
	VehicleArmored   VehicleKind = "Armored"
	VehicleAir       VehicleKind = "Air"
	VehicleAirAttack VehicleKind = "AirAttack"
	VehicleBoat      VehicleKind = "Boat"
)

// AllVehicleKinds lists vehicle slots in replication order.
var AllVehicleKinds = []VehicleKind{VehicleTransport, VehicleArmored, VehicleAir, VehicleAirAttack, VehicleBoat}

// TurretKind names a turret spawn slot.
type TurretKind string

const (
	TurretMachineGun TurretKind = "MachineGun"
	TurretAntiTank   TurretKind = "AntiTank"
	TurretAntiAir    TurretKind = "AntiAir"
)

// AllTurretKinds lists turret slots in replication order.
var AllTurretKinds = []TurretKind{TurretMachineGun, TurretAntiTank, TurretAntiAir}

// MapEntry identifies a selectable map. Official and custom maps may share a
// display name, so both fields participate in identity.
type MapEntry struct {
	Name     string
	Official bool
}

// HostSimulation is the narrow surface the engine needs from the game
// simulation: candidate pools for the codec, getters and setters for every
// replicated field, and a handful of match-control hooks. The engine never
// reaches into simulation internals beyond this interface.
type HostSimulation interface {
	// Candidate pools. Modded pools must be sorted by name; the sort order is
	// part of the wire contract because external entries replicate by index.
	DefaultVehicles() []*Prefab
	ModdedVehicles() []*Prefab
	DefaultTurrets() []*Prefab
	ModdedTurrets() []*Prefab
	WeaponByHash(hash int) (*WeaponEntry, bool)
	SkinByName(name string) (*Skin, bool)
	// Mutators must be sorted by name for the same reason: the enable list
	// and the per-mutator config keys replicate positions in this slice.
	Mutators() []*Mutator

	// Scalar configuration.
	GameMode() GameMode
	SetGameMode(mode GameMode)
	NightMode() bool
	SetNightMode(night bool)
	BotCount(team TeamID) int
	SetBotCount(team TeamID, count int)
	RespawnTime() int
	SetRespawnTime(seconds int)
	GameLength() int
	SetGameLength(length int)
	CurrentMap() MapEntry
	SelectMap(entry MapEntry) bool
	PlayerTeam() TeamID
	SetPlayerTeam(team TeamID)

	// Composite per-team lists.
	TeamWeapons(team TeamID) []TieredWeapon
	SetTeamWeapons(team TeamID, entries []TieredWeapon)
	VehicleSlot(team TeamID, kind VehicleKind) []TieredPrefab
	SetVehicleSlot(team TeamID, kind VehicleKind, entries []TieredPrefab)
	TurretSlot(team TeamID, kind TurretKind) []TieredPrefab
	SetTurretSlot(team TeamID, kind TurretKind, entries []TieredPrefab)
	TeamSkin(team TeamID) *Skin
	SetTeamSkin(team TeamID, skin *Skin)
	TeamColor(team TeamID) string
	SetTeamColor(team TeamID, hex string)
	TeamName(team TeamID) string
	SetTeamName(team TeamID, name string)

	// Match control.
	RefreshPreview()
	StartMatch()
	SetNameTags(enabled, teamOnly bool)
	KillActor(name string) error
}
