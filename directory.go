package lobby

// MemberID identifies a peer in the session directory.
type MemberID string

// SessionID identifies a joinable session in the directory.
type SessionID string

// SessionSettings configures session creation.
type SessionSettings struct {
	FriendsOnly bool
	MemberCap   int
}

// Directory is the contract the engine needs from the external session
// directory: session lifecycle, the shared string key-value store, member
// enumeration, and the lobby chat bus. Calls that complete asynchronously
// (create, join, list) deliver their results as events on the queue the
// implementation was attached with.
type Directory interface {
	LocalID() MemberID
	DisplayName(member MemberID) string

	CreateSession(settings SessionSettings) error
	JoinSession(id SessionID) error
	LeaveSession(id SessionID)
	RequestSessionList() error
	RequestSessionData(id SessionID) error

	SessionData(id SessionID, key string) string
	SetSessionData(id SessionID, key, value string) error
	MemberData(id SessionID, member MemberID, key string) string
	SetMemberData(id SessionID, key, value string) error
	Members(id SessionID) []MemberID
	MemberLimit(id SessionID) int

	SendChat(id SessionID, data []byte) error
}

// Session-level store keys. The store itself is stringly typed; every access
// in the engine goes through these constants so a typo cannot silently create
// a new key.
const (
	keyOwner            = "owner"
	keyBuildID          = "build_id"
	keyLobbyName        = "lobbyname"
	keyHidden           = "hidden"
	keyHotjoin          = "hotjoin"
	keyNameTags         = "nameTags"
	keyNameTagsTeamOnly = "nameTagsForTeamOnly"
	keyAnnouncement     = "customAnnouncement"
	keyMods             = "mods"
	keyModTotalSize     = "modtotalsize"
	keyStarted          = "started"
	keyRelayAddr        = "relay"
	keyGameMode         = "gameMode"
	keyNightMode        = "nightMode"
	keyBotsEagle        = "botAmountEagle"
	keyBotsRaven        = "botAmountRaven"
	keyRespawnTime      = "respawnTime"
	keyGameLength       = "gameLength"
	keyMap              = "map"
	keyIsOfficialMap    = "isOfficialMap"
	keyMutators         = "mutators"
	keySessionTeam      = "team"
)

// Per-member store keys.
const (
	memberKeyTeam           = "team"
	memberKeyLoaded         = "loaded"
	memberKeyReady          = "ready"
	memberKeyModsDownloaded = "modsDownloaded"
)

func teamKey(team TeamID, suffix string) string {
	return string('0'+byte(team)) + suffix
}

func vehicleKey(team TeamID, kind VehicleKind) string {
	return teamKey(team, "vehicle_"+string(kind))
}

func turretKey(team TeamID, kind TurretKind) string {
	return teamKey(team, "turret_"+string(kind))
}
