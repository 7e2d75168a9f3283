package warfront

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Phase names, in turn order.
const (
	PhasePurchase      = "purchase"
	PhaseCombatMove    = "combat_move"
	PhaseCombat        = "combat"
	PhaseNonCombatMove = "non_combat_move"
	PhaseMobilization  = "mobilization"
)

// PhaseOrder is the fixed phase sequence within a faction's turn.
var PhaseOrder = []string{PhasePurchase, PhaseCombatMove, PhaseCombat, PhaseNonCombatMove, PhaseMobilization}

// Unit is a single mutable unit instance. Its owning faction is derived
// from the prefix of InstanceID — no other field carries ownership.
type Unit struct {
	InstanceID        string `json:"instance_id"`
	UnitID            string `json:"unit_id"`
	RemainingMovement int    `json:"remaining_movement"`
	RemainingHealth   int    `json:"remaining_health"`
	BaseMovement      int    `json:"base_movement"`
	BaseHealth        int    `json:"base_health"`
}

// Faction returns the owning faction id, the text before the first
// underscore in InstanceID. This is the sole ownership marker for a unit
// instance, consulted throughout the reducer.
func (u *Unit) Faction() string {
	if idx := strings.Index(u.InstanceID, "_"); idx >= 0 {
		return u.InstanceID[:idx]
	}
	return u.InstanceID
}

func (u *Unit) clone() *Unit {
	c := *u
	return &c
}

// UnitStack is a count of a single unit type, used for the purchase pool
// and pending mobilizations.
type UnitStack struct {
	UnitID string `json:"unit_id"`
	Count  int    `json:"count"`
}

// TerritoryState is the mutable per-territory record. Owner and
// OriginalOwner are "" for unowned. OriginalOwner is set once at game
// start and never changes afterward.
type TerritoryState struct {
	Owner         string  `json:"owner"`
	OriginalOwner string  `json:"original_owner"`
	Units         []*Unit `json:"units"`
}

func (t *TerritoryState) clone() *TerritoryState {
	c := &TerritoryState{Owner: t.Owner, OriginalOwner: t.OriginalOwner}
	c.Units = make([]*Unit, len(t.Units))
	for i, u := range t.Units {
		c.Units[i] = u.clone()
	}
	return c
}

// CombatRoundResult is one logged round (or the pre-fire step, round 0) of
// an active or finished combat.
type CombatRoundResult struct {
	RoundNumber        int      `json:"round_number"`
	AttackerRolls      []int    `json:"attacker_rolls"`
	DefenderRolls      []int    `json:"defender_rolls"`
	AttackerHits       int      `json:"attacker_hits"`
	DefenderHits       int      `json:"defender_hits"`
	AttackerCasualties []string `json:"attacker_casualties"`
	DefenderCasualties []string `json:"defender_casualties"`
	AttackersRemaining int      `json:"attackers_remaining"`
	DefendersRemaining int      `json:"defenders_remaining"`
	IsArcherPrefire    bool     `json:"is_archer_prefire,omitempty"`
}

// ActiveCombat tracks an in-progress multi-round fight. Attackers and
// defenders both occupy TerritoryID for its duration.
type ActiveCombat struct {
	AttackerFaction     string              `json:"attacker_faction"`
	TerritoryID         string              `json:"territory_id"`
	AttackerInstanceIDs []string            `json:"attacker_instance_ids"`
	RoundNumber         int                 `json:"round_number"`
	CombatLog           []CombatRoundResult `json:"combat_log"`
	AttackersHaveRolled bool                `json:"attackers_have_rolled"`
}

func (c *ActiveCombat) clone() *ActiveCombat {
	if c == nil {
		return nil
	}
	cl := *c
	cl.AttackerInstanceIDs = append([]string(nil), c.AttackerInstanceIDs...)
	cl.CombatLog = make([]CombatRoundResult, len(c.CombatLog))
	for i, r := range c.CombatLog {
		cl.CombatLog[i] = r
		cl.CombatLog[i].AttackerRolls = append([]int(nil), r.AttackerRolls...)
		cl.CombatLog[i].DefenderRolls = append([]int(nil), r.DefenderRolls...)
		cl.CombatLog[i].AttackerCasualties = append([]string(nil), r.AttackerCasualties...)
		cl.CombatLog[i].DefenderCasualties = append([]string(nil), r.DefenderCasualties...)
	}
	return &cl
}

// PendingMove is a declared but not-yet-applied move, created by
// move_units and consumed at the end of the phase it was declared in.
type PendingMove struct {
	FromTerritory   string   `json:"from_territory"`
	ToTerritory     string   `json:"to_territory"`
	UnitInstanceIDs []string `json:"unit_instance_ids"`
	Phase           string   `json:"phase"`
	ChargeThrough   []string `json:"charge_through,omitempty"`
}

// PendingMobilization is a declared but not-yet-materialized mobilization.
type PendingMobilization struct {
	Destination string      `json:"destination"`
	Units       []UnitStack `json:"units"`
}

// PendingCamp is a purchased camp awaiting placement.
type PendingCamp struct {
	TerritoryOptions  []string `json:"territory_options"`
	PlacedTerritoryID string   `json:"placed_territory_id,omitempty"`
}

// GameState is the full mutable game state. Construct derivatives only via
// Clone and the reducer; never mutate a state a caller still holds a
// reference to.
type GameState struct {
	TurnNumber     int    `json:"turn_number"`
	CurrentFaction string `json:"current_faction"`
	Phase          string `json:"phase"`

	Territories map[string]*TerritoryState `json:"territories"`

	FactionResources      map[string]map[string]int `json:"faction_resources"`
	FactionPurchasedUnits map[string][]UnitStack    `json:"faction_purchased_units"`
	UnitIDCounters        map[string]int            `json:"unit_id_counters"`

	ActiveCombat *ActiveCombat `json:"active_combat,omitempty"`

	FactionPendingIncome          map[string]map[string]int `json:"faction_pending_income"`
	PendingCaptures               map[string]string         `json:"pending_captures"`
	CampsStanding                 []string                  `json:"camps_standing"`
	MobilizationCamps             []string                  `json:"mobilization_camps"`
	PendingMoves                  []PendingMove             `json:"pending_moves"`
	PendingMobilizations          []PendingMobilization     `json:"pending_mobilizations"`
	FactionTerritoriesAtTurnStart map[string][]string       `json:"faction_territories_at_turn_start"`
	PendingCamps                  []PendingCamp             `json:"pending_camps"`
	DynamicCamps                  map[string]string         `json:"dynamic_camps"`

	CampCost        int             `json:"camp_cost"`
	VictoryCriteria VictoryCriteria `json:"victory_criteria"`
	MapAsset        string          `json:"map_asset,omitempty"`
	Winner          string          `json:"winner,omitempty"`
}

// GenerateInstanceID mints the next instance id for a faction, of the form
// "<faction>_<unit_id>_<NNN>". The counter is per faction and shared
// across unit types.
func (s *GameState) GenerateInstanceID(factionID, unitID string) string {
	if s.UnitIDCounters == nil {
		s.UnitIDCounters = map[string]int{}
	}
	s.UnitIDCounters[factionID]++
	return fmt.Sprintf("%s_%s_%03d", factionID, unitID, s.UnitIDCounters[factionID])
}

// Clone returns a deep copy of the state. The reducer never mutates a
// caller-held state; it clones on entry and returns the clone.
func (s *GameState) Clone() *GameState {
	c := &GameState{
		TurnNumber:     s.TurnNumber,
		CurrentFaction: s.CurrentFaction,
		Phase:          s.Phase,
		CampCost:       s.CampCost,
		MapAsset:       s.MapAsset,
		Winner:         s.Winner,
	}
	c.VictoryCriteria = VictoryCriteria{Strongholds: cloneIntMap(s.VictoryCriteria.Strongholds)}

	c.Territories = make(map[string]*TerritoryState, len(s.Territories))
	for id, t := range s.Territories {
		c.Territories[id] = t.clone()
	}

	c.FactionResources = make(map[string]map[string]int, len(s.FactionResources))
	for f, r := range s.FactionResources {
		c.FactionResources[f] = cloneIntMap(r)
	}

	c.FactionPurchasedUnits = make(map[string][]UnitStack, len(s.FactionPurchasedUnits))
	for f, stacks := range s.FactionPurchasedUnits {
		c.FactionPurchasedUnits[f] = append([]UnitStack(nil), stacks...)
	}

	c.UnitIDCounters = cloneIntMap(s.UnitIDCounters)

	c.ActiveCombat = s.ActiveCombat.clone()

	c.FactionPendingIncome = make(map[string]map[string]int, len(s.FactionPendingIncome))
	for f, r := range s.FactionPendingIncome {
		c.FactionPendingIncome[f] = cloneIntMap(r)
	}

	c.PendingCaptures = map[string]string{}
	for k, v := range s.PendingCaptures {
		c.PendingCaptures[k] = v
	}

	c.CampsStanding = append([]string(nil), s.CampsStanding...)
	c.MobilizationCamps = append([]string(nil), s.MobilizationCamps...)

	c.PendingMoves = make([]PendingMove, len(s.PendingMoves))
	for i, pm := range s.PendingMoves {
		c.PendingMoves[i] = PendingMove{
			FromTerritory:   pm.FromTerritory,
			ToTerritory:     pm.ToTerritory,
			UnitInstanceIDs: append([]string(nil), pm.UnitInstanceIDs...),
			Phase:           pm.Phase,
			ChargeThrough:   append([]string(nil), pm.ChargeThrough...),
		}
	}

	c.PendingMobilizations = make([]PendingMobilization, len(s.PendingMobilizations))
	for i, pm := range s.PendingMobilizations {
		c.PendingMobilizations[i] = PendingMobilization{
			Destination: pm.Destination,
			Units:       append([]UnitStack(nil), pm.Units...),
		}
	}

	c.FactionTerritoriesAtTurnStart = make(map[string][]string, len(s.FactionTerritoriesAtTurnStart))
	for f, ts := range s.FactionTerritoriesAtTurnStart {
		c.FactionTerritoriesAtTurnStart[f] = append([]string(nil), ts...)
	}

	c.PendingCamps = make([]PendingCamp, len(s.PendingCamps))
	for i, pc := range s.PendingCamps {
		c.PendingCamps[i] = PendingCamp{
			TerritoryOptions:  append([]string(nil), pc.TerritoryOptions...),
			PlacedTerritoryID: pc.PlacedTerritoryID,
		}
	}

	c.DynamicCamps = map[string]string{}
	for k, v := range s.DynamicCamps {
		c.DynamicCamps[k] = v
	}

	return c
}

func cloneIntMap(m map[string]int) map[string]int {
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// UnitByInstanceID finds a unit instance and its containing territory id
// across the whole state. Returns (nil, "") if not found.
func (s *GameState) UnitByInstanceID(instanceID string) (*Unit, string) {
	for tid, t := range s.Territories {
		for _, u := range t.Units {
			if u.InstanceID == instanceID {
				return u, tid
			}
		}
	}
	return nil, ""
}

// FactionOwnsCapital reports whether faction still owns its capital
// territory (purchasing and mobilizing both require this).
func FactionOwnsCapital(s *GameState, factionID string, defs *Definitions) bool {
	fd, ok := defs.Factions[factionID]
	if !ok {
		return false
	}
	t, ok := s.Territories[fd.Capital]
	if !ok {
		return false
	}
	return t.Owner == factionID
}

// TerritoryHasStandingCamp reports whether the territory has a camp (setup
// or dynamic) that has not been destroyed by capture.
func TerritoryHasStandingCamp(s *GameState, territoryID string, camps map[string]*CampDefinition) bool {
	for _, campID := range s.CampsStanding {
		if s.DynamicCamps[campID] == territoryID {
			return true
		}
		if cd, ok := camps[campID]; ok && cd.TerritoryID == territoryID {
			return true
		}
	}
	return false
}

// ---- Serialization ----

// ToRecord marshals the state into its canonical JSON record.
func (s *GameState) ToRecord() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromRecord parses a JSON record into a GameState, defensively defaulting
// absent or malformed optional fields and migrating legacy keys
// ("mobilization_strongholds" -> "mobilization_camps",
// flat "victory_strongholds" -> "victory_criteria.strongholds") so saves
// from an earlier schema keep loading.
func FromRecord(data []byte) (*GameState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newErr(ErrStateCorrupt, "malformed state record: %v", err)
	}

	s := &GameState{
		Territories:                   map[string]*TerritoryState{},
		FactionResources:              map[string]map[string]int{},
		FactionPurchasedUnits:         map[string][]UnitStack{},
		UnitIDCounters:                map[string]int{},
		FactionPendingIncome:          map[string]map[string]int{},
		PendingCaptures:               map[string]string{},
		FactionTerritoriesAtTurnStart: map[string][]string{},
		DynamicCamps:                  map[string]string{},
		VictoryCriteria:               DefaultVictoryCriteria(),
		Phase:                         PhasePurchase,
	}

	s.TurnNumber = intField(raw, "turn_number", 1)
	s.CurrentFaction = strField(raw, "current_faction", "")
	if p := strField(raw, "phase", ""); p != "" {
		s.Phase = p
	}
	s.CampCost = intField(raw, "camp_cost", 0)
	s.MapAsset = strField(raw, "map_asset", "")
	s.Winner = strField(raw, "winner", "")

	if v, ok := raw["territories"]; ok {
		var terrs map[string]struct {
			Owner         string  `json:"owner"`
			OriginalOwner string  `json:"original_owner"`
			Units         []*Unit `json:"units"`
		}
		if err := json.Unmarshal(v, &terrs); err == nil {
			for id, t := range terrs {
				units := t.Units
				if units == nil {
					units = []*Unit{}
				}
				s.Territories[id] = &TerritoryState{Owner: t.Owner, OriginalOwner: t.OriginalOwner, Units: units}
			}
		}
	}

	s.FactionResources = intMapMapField(raw, "faction_resources")
	s.FactionPendingIncome = intMapMapField(raw, "faction_pending_income")

	if v, ok := raw["faction_purchased_units"]; ok {
		var m map[string][]UnitStack
		if err := json.Unmarshal(v, &m); err == nil {
			for f, stacks := range m {
				pruned := make([]UnitStack, 0, len(stacks))
				for _, st := range stacks {
					if st.Count > 0 {
						pruned = append(pruned, st)
					}
				}
				s.FactionPurchasedUnits[f] = pruned
			}
		}
	}

	if v, ok := raw["unit_id_counters"]; ok {
		var m map[string]json.Number
		if err := json.Unmarshal(v, &m); err == nil {
			for k, n := range m {
				iv, _ := strconv.Atoi(string(n))
				s.UnitIDCounters[k] = iv
			}
		} else {
			var mi map[string]int
			if err := json.Unmarshal(v, &mi); err == nil {
				s.UnitIDCounters = mi
			}
		}
	}

	if v, ok := raw["active_combat"]; ok && string(v) != "null" {
		var ac struct {
			AttackerFaction     string              `json:"attacker_faction"`
			TerritoryID         string              `json:"territory_id"`
			AttackerInstanceIDs []string            `json:"attacker_instance_ids"`
			RoundNumber         int                 `json:"round_number"`
			CombatLog           []CombatRoundResult `json:"combat_log"`
			AttackersHaveRolled *bool               `json:"attackers_have_rolled"`
		}
		if err := json.Unmarshal(v, &ac); err == nil {
			rolled := true
			if ac.AttackersHaveRolled != nil {
				rolled = *ac.AttackersHaveRolled
			}
			s.ActiveCombat = &ActiveCombat{
				AttackerFaction:     ac.AttackerFaction,
				TerritoryID:         ac.TerritoryID,
				AttackerInstanceIDs: ac.AttackerInstanceIDs,
				RoundNumber:         ac.RoundNumber,
				CombatLog:           ac.CombatLog,
				AttackersHaveRolled: rolled,
			}
		}
	}

	s.CampsStanding = strSliceField(raw, "camps_standing")

	if v, ok := raw["mobilization_camps"]; ok {
		s.MobilizationCamps = decodeStrSlice(v)
	} else if v, ok := raw["mobilization_strongholds"]; ok {
		s.MobilizationCamps = decodeStrSlice(v)
	}

	if v, ok := raw["pending_captures"]; ok {
		var m map[string]string
		if err := json.Unmarshal(v, &m); err == nil {
			s.PendingCaptures = m
		}
	}

	if v, ok := raw["pending_moves"]; ok {
		var pms []PendingMove
		if err := json.Unmarshal(v, &pms); err == nil {
			s.PendingMoves = pms
		}
	}

	if v, ok := raw["pending_mobilizations"]; ok {
		var pms []PendingMobilization
		if err := json.Unmarshal(v, &pms); err == nil {
			s.PendingMobilizations = pms
		}
	}

	if v, ok := raw["faction_territories_at_turn_start"]; ok {
		var m map[string][]string
		if err := json.Unmarshal(v, &m); err == nil {
			s.FactionTerritoriesAtTurnStart = m
		}
	}

	if v, ok := raw["pending_camps"]; ok {
		var pcs []PendingCamp
		if err := json.Unmarshal(v, &pcs); err == nil {
			s.PendingCamps = pcs
		}
	}

	if v, ok := raw["dynamic_camps"]; ok {
		var m map[string]string
		if err := json.Unmarshal(v, &m); err == nil {
			s.DynamicCamps = m
		}
	}

	if v, ok := raw["victory_criteria"]; ok {
		var vc VictoryCriteria
		if err := json.Unmarshal(v, &vc); err == nil && len(vc.Strongholds) > 0 {
			s.VictoryCriteria = vc
		}
	} else if v, ok := raw["victory_strongholds"]; ok {
		var m map[string]int
		if err := json.Unmarshal(v, &m); err == nil && len(m) > 0 {
			s.VictoryCriteria = VictoryCriteria{Strongholds: m}
		}
	}

	return s, nil
}

func decodeStrSlice(v json.RawMessage) []string {
	var s []string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return nil
}

func strSliceField(raw map[string]json.RawMessage, key string) []string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	return decodeStrSlice(v)
}

func intField(raw map[string]json.RawMessage, key string, def int) int {
	v, ok := raw[key]
	if !ok {
		return def
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if iv, err := strconv.Atoi(string(n)); err == nil {
			return iv
		}
	}
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		if iv, err := strconv.Atoi(str); err == nil {
			return iv
		}
	}
	return def
}

func strField(raw map[string]json.RawMessage, key, def string) string {
	v, ok := raw[key]
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return def
}

func intMapMapField(raw map[string]json.RawMessage, key string) map[string]map[string]int {
	out := map[string]map[string]int{}
	v, ok := raw[key]
	if !ok {
		return out
	}
	var m map[string]map[string]json.Number
	if err := json.Unmarshal(v, &m); err == nil {
		for f, rs := range m {
			inner := map[string]int{}
			for r, n := range rs {
				iv, _ := strconv.Atoi(string(n))
				inner[r] = iv
			}
			out[f] = inner
		}
		return out
	}
	var m2 map[string]map[string]int
	if err := json.Unmarshal(v, &m2); err == nil {
		return m2
	}
	return out
}

// SortedTerritoryIDs returns territory ids in sorted order for
// deterministic iteration (e.g. printing, stable diffing).
func (s *GameState) SortedTerritoryIDs() []string {
	ids := make([]string, 0, len(s.Territories))
	for id := range s.Territories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
