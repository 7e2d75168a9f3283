package warfront

import "sort"

// PurchasableUnit is one row of the purchase menu: the definition plus how
// many of it the faction can currently afford.
type PurchasableUnit struct {
	Unit          *UnitDefinition `json:"unit"`
	MaxAffordable int             `json:"max_affordable"`
}

// GetPurchasableUnits lists the faction's purchasable unit types in sorted
// id order, with max_affordable = min over cost resources of
// floor(have/cost), or 0 when any non-zero cost is unmet.
func GetPurchasableUnits(s *GameState, factionID string, defs *Definitions) []PurchasableUnit {
	resources := s.FactionResources[factionID]

	ids := make([]string, 0, len(defs.Units))
	for id, ud := range defs.Units {
		if ud.Purchasable && ud.Faction == factionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]PurchasableUnit, 0, len(ids))
	for _, id := range ids {
		ud := defs.Units[id]
		max := -1
		for resource, cost := range ud.Cost {
			if cost <= 0 {
				continue
			}
			affordable := resources[resource] / cost
			if max < 0 || affordable < max {
				max = affordable
			}
		}
		if max < 0 {
			max = 0
		}
		out = append(out, PurchasableUnit{Unit: ud, MaxAffordable: max})
	}
	return out
}

// MobilizationSlot is one camp territory and its deployment power.
type MobilizationSlot struct {
	TerritoryID string `json:"territory_id"`
	Power       int    `json:"power"`
}

// MobilizationCapacity is the turn's full deployment picture.
type MobilizationCapacity struct {
	Slots         []MobilizationSlot `json:"slots"`
	TotalCapacity int                `json:"total_capacity"`
}

// GetMobilizationCapacity reports each mobilization camp's power and the
// turn total.
func GetMobilizationCapacity(s *GameState, defs *Definitions) MobilizationCapacity {
	var out MobilizationCapacity
	camps := append([]string(nil), s.MobilizationCamps...)
	sort.Strings(camps)
	for _, tid := range camps {
		power := 0
		if td, ok := defs.Territories[tid]; ok {
			power = td.Produces["power"]
		}
		out.Slots = append(out.Slots, MobilizationSlot{TerritoryID: tid, Power: power})
		out.TotalCapacity += power
	}
	return out
}

// MovableUnit is a unit instance that can still move this turn, with its
// current territory.
type MovableUnit struct {
	Unit        *Unit  `json:"unit"`
	TerritoryID string `json:"territory_id"`
}

// GetMovableUnits returns every unit instance owned by the faction with
// remaining movement, in sorted territory order.
func GetMovableUnits(s *GameState, factionID string) []MovableUnit {
	var out []MovableUnit
	for _, tid := range s.SortedTerritoryIDs() {
		for _, u := range s.Territories[tid].Units {
			if u.Faction() == factionID && u.RemainingMovement > 0 {
				out = append(out, MovableUnit{Unit: u, TerritoryID: tid})
			}
		}
	}
	return out
}

// GetUnitMoveTargets computes the reachable destinations for one unit
// instance in the current phase. Returns nil for an unknown instance or a
// non-movement phase.
func GetUnitMoveTargets(s *GameState, instanceID string, defs *Definitions) map[string]*ReachableTerritory {
	if s.Phase != PhaseCombatMove && s.Phase != PhaseNonCombatMove {
		return nil
	}
	u, tid := s.UnitByInstanceID(instanceID)
	if u == nil {
		return nil
	}
	return ReachableTerritoriesForUnit(u, tid, u.RemainingMovement, s, defs.Units, defs.Territories, defs.Factions, ReachabilityPhase(s.Phase))
}

// GetContestedTerritories lists territories where the faction has at least
// one unit alongside at least one unit of a different alliance.
func GetContestedTerritories(s *GameState, factionID string, defs *Definitions) []string {
	myAlliance := allianceOf(factionID, defs.Factions)
	var out []string
	for _, tid := range s.SortedTerritoryIDs() {
		hasMine := false
		hasOtherAlliance := false
		for _, u := range s.Territories[tid].Units {
			if u.Faction() == factionID {
				hasMine = true
				continue
			}
			unitAlliance, known := factionAlliance(u.Faction(), defs.Factions)
			if !known || unitAlliance != myAlliance {
				hasOtherAlliance = true
			}
		}
		if hasMine && hasOtherAlliance {
			out = append(out, tid)
		}
	}
	return out
}

// GetRetreatOptions lists the legal retreat destinations for the active
// combat: adjacent territories that are allied or friendly neutral. Nil
// when no combat is active.
func GetRetreatOptions(s *GameState, defs *Definitions) []string {
	combat := s.ActiveCombat
	if combat == nil {
		return nil
	}
	td := defs.Territories[combat.TerritoryID]
	if td == nil {
		return nil
	}
	var out []string
	for _, tid := range td.Adjacent {
		t := s.Territories[tid]
		if t != nil && territoryIsFriendlyForRetreat(t, combat.AttackerFaction, defs.Factions) {
			out = append(out, tid)
		}
	}
	return out
}

// FactionStats is the per-faction scoreboard row.
type FactionStats struct {
	Territories  int `json:"territories"`
	Strongholds  int `json:"strongholds"`
	Power        int `json:"power"`
	PowerPerTurn int `json:"power_per_turn"`
	Units        int `json:"units"`
}

// GameStats aggregates per-faction and per-alliance scoreboards.
type GameStats struct {
	Factions  map[string]FactionStats `json:"factions"`
	Alliances map[string]FactionStats `json:"alliances"`
}

// GetFactionStats computes territory, stronghold, power, income, and unit
// counts per faction, with alliance rollups.
func GetFactionStats(s *GameState, defs *Definitions) GameStats {
	stats := GameStats{Factions: map[string]FactionStats{}, Alliances: map[string]FactionStats{}}
	for fid := range defs.Factions {
		stats.Factions[fid] = FactionStats{}
	}

	for _, tid := range s.SortedTerritoryIDs() {
		ts := s.Territories[tid]
		td := defs.Territories[tid]

		if ts.Owner != "" {
			fs := stats.Factions[ts.Owner]
			fs.Territories++
			if td != nil {
				if td.IsStronghold {
					fs.Strongholds++
				}
				fs.PowerPerTurn += td.Produces["power"]
			}
			stats.Factions[ts.Owner] = fs
		}
		for _, u := range ts.Units {
			fs := stats.Factions[u.Faction()]
			fs.Units++
			stats.Factions[u.Faction()] = fs
		}
	}

	for fid, fs := range stats.Factions {
		fs.Power = s.FactionResources[fid]["power"]
		stats.Factions[fid] = fs

		fd := defs.Factions[fid]
		if fd == nil {
			continue
		}
		as := stats.Alliances[fd.Alliance]
		as.Territories += fs.Territories
		as.Strongholds += fs.Strongholds
		as.Power += fs.Power
		as.PowerPerTurn += fs.PowerPerTurn
		as.Units += fs.Units
		stats.Alliances[fd.Alliance] = as
	}
	return stats
}
