package lobby

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"skirmish/lobby/logging"
)

// emptyListSentinel replicates an empty slot. A truly empty store value is
// indistinguishable from an unset key, so empty lists go on the wire as this
// sentinel and decode back to an empty slice.
const emptyListSentinel = "NULL"

// codec translates between simulation state and the canonical string forms
// stored in session data. Every encoder has a matching decoder and malformed
// tokens are skipped, never fatal: a bad entry from a remote host must not
// take down the local session.
type codec struct {
	sim HostSimulation
	log logging.Publisher
}

func newCodec(sim HostSimulation, log logging.Publisher) *codec {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &codec{sim: sim, log: log}
}

// encodeTeamWeapons renders a team's weapon loadout as comma-separated
// "<tier>#<hash>" tokens. Duplicate hashes collapse to the first occurrence.
func (c *codec) encodeTeamWeapons(entries []TieredWeapon) string {
	seen := make(map[int]struct{}, len(entries))
	tokens := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Entry == nil {
			continue
		}
		if _, dup := seen[e.Entry.NameHash]; dup {
			continue
		}
		seen[e.Entry.NameHash] = struct{}{}
		tokens = append(tokens, strconv.Itoa(int(e.Tier))+"#"+strconv.Itoa(e.Entry.NameHash))
	}
	return strings.Join(tokens, ",")
}

// decodeTeamWeapons parses the wire form produced by encodeTeamWeapons.
// Tokens referencing hashes absent from the local pool are dropped with a
// diagnostic, so a host running extra content degrades instead of failing.
func (c *codec) decodeTeamWeapons(raw string) []TieredWeapon {
	if raw == "" || raw == emptyListSentinel {
		return nil
	}
	parts := strings.Split(raw, ",")
	entries := make([]TieredWeapon, 0, len(parts))
	for _, token := range parts {
		tier, hash, ok := splitTierToken(token)
		if !ok {
			c.skipToken("weapon", token)
			continue
		}
		entry, found := c.sim.WeaponByHash(hash)
		if !found {
			c.skipToken("weapon", token)
			continue
		}
		entries = append(entries, TieredWeapon{Entry: entry, Tier: RarityTier(tier)})
	}
	return entries
}

// encodePrefabSlot renders a vehicle or turret slot as comma-separated
// "<isDefault>#<tier>#<index>" tokens. Indices address the default pool when
// the first field is true and the name-sorted modded pool otherwise. An empty
// slot encodes as the sentinel so clients can tell it apart from an unset key.
func (c *codec) encodePrefabSlot(entries []TieredPrefab, defaults, modded []*Prefab) string {
	tokens := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Prefab == nil {
			continue
		}
		if idx, ok := prefabIndex(defaults, e.Prefab); ok {
			tokens = append(tokens, "true#"+strconv.Itoa(int(e.Tier))+"#"+strconv.Itoa(idx))
			continue
		}
		if idx, ok := prefabIndex(modded, e.Prefab); ok {
			tokens = append(tokens, "false#"+strconv.Itoa(int(e.Tier))+"#"+strconv.Itoa(idx))
			continue
		}
		c.skipToken("prefab", e.Prefab.Name)
	}
	if len(tokens) == 0 {
		return emptyListSentinel
	}
	return strings.Join(tokens, ",")
}

// decodePrefabSlot parses the wire form produced by encodePrefabSlot.
// Out-of-range indices are skipped; the sentinel decodes to an empty slice.
func (c *codec) decodePrefabSlot(raw string, defaults, modded []*Prefab) []TieredPrefab {
	if raw == "" || raw == emptyListSentinel {
		return nil
	}
	parts := strings.Split(raw, ",")
	entries := make([]TieredPrefab, 0, len(parts))
	for _, token := range parts {
		fields := strings.Split(token, "#")
		if len(fields) != 3 {
			c.skipToken("prefab", token)
			continue
		}
		isDefault, err := strconv.ParseBool(fields[0])
		if err != nil {
			c.skipToken("prefab", token)
			continue
		}
		tier, err := strconv.Atoi(fields[1])
		if err != nil {
			c.skipToken("prefab", token)
			continue
		}
		idx, err := strconv.Atoi(fields[2])
		if err != nil {
			c.skipToken("prefab", token)
			continue
		}
		pool := modded
		if isDefault {
			pool = defaults
		}
		if idx < 0 || idx >= len(pool) {
			c.skipToken("prefab", token)
			continue
		}
		entries = append(entries, TieredPrefab{Prefab: pool[idx], Tier: RarityTier(tier)})
	}
	return entries
}

// encodeMutators renders the enabled-mutator index list. Configuration for
// each enabled mutator is written separately, see encodeMutatorConfig.
func (c *codec) encodeMutators(mutators []*Mutator) string {
	tokens := make([]string, 0, len(mutators))
	for i, m := range mutators {
		if m.Enabled {
			tokens = append(tokens, strconv.Itoa(i))
		}
	}
	return strings.Join(tokens, ",")
}

// decodeMutators applies the enabled-index list to the local mutator pool.
// Every mutator not named is disabled.
func (c *codec) decodeMutators(raw string, mutators []*Mutator) {
	enabled := make(map[int]struct{})
	if raw != "" {
		for _, token := range strings.Split(raw, ",") {
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(mutators) {
				c.skipToken("mutator", token)
				continue
			}
			enabled[idx] = struct{}{}
		}
	}
	for i, m := range mutators {
		_, on := enabled[i]
		m.Enabled = on
	}
}

// encodeMutatorConfig serializes a mutator's fields as a JSON string array.
func (c *codec) encodeMutatorConfig(m *Mutator) string {
	values := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		values[i] = f.Serialize()
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeMutatorConfig applies a JSON string array onto a mutator's fields.
// Extra values are ignored and missing values leave fields at their current
// setting.
func (c *codec) decodeMutatorConfig(raw string, m *Mutator) {
	if raw == "" {
		return
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		c.skipToken("mutator_config", m.Name)
		return
	}
	for i, f := range m.Fields {
		if i >= len(values) {
			break
		}
		if err := f.Deserialize(values[i]); err != nil {
			c.skipToken("mutator_config", m.Name)
		}
	}
}

func (c *codec) skipToken(kind, token string) {
	c.log.Publish(context.Background(), logging.Event{
		Type:     "codec_skip",
		Severity: logging.SeverityWarn,
		Category: logging.CategoryReplication,
		Payload:  map[string]any{"kind": kind, "token": token},
	})
}

func splitTierToken(token string) (tier, hash int, ok bool) {
	fields := strings.Split(token, "#")
	if len(fields) != 2 {
		return 0, 0, false
	}
	tier, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	hash, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return tier, hash, true
}

func prefabIndex(pool []*Prefab, p *Prefab) (int, bool) {
	for i, candidate := range pool {
		if candidate == p {
			return i, true
		}
	}
	return 0, false
}
