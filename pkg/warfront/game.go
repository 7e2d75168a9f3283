package warfront

import "sort"

// NewGame builds the initial state for a definitions snapshot: territory
// ownership and starting units from the starting setup, starting resources
// equal to one turn of production, and the first faction's turn-start
// snapshots (owned territories, mobilization camps).
func NewGame(defs *Definitions) *GameState {
	s := &GameState{
		TurnNumber:                    1,
		Phase:                         PhasePurchase,
		Territories:                   map[string]*TerritoryState{},
		FactionResources:              map[string]map[string]int{},
		FactionPurchasedUnits:         map[string][]UnitStack{},
		UnitIDCounters:                map[string]int{},
		FactionPendingIncome:          map[string]map[string]int{},
		PendingCaptures:               map[string]string{},
		FactionTerritoriesAtTurnStart: map[string][]string{},
		DynamicCamps:                  map[string]string{},
		CampCost:                      defs.CampCost,
		VictoryCriteria:               VictoryCriteria{Strongholds: cloneIntMap(defs.VictoryCriteria.Strongholds)},
		MapAsset:                      defs.MapAsset,
	}

	for territoryID := range defs.Territories {
		s.Territories[territoryID] = &TerritoryState{Units: []*Unit{}}
	}

	factionIDs := defs.SortedFactionIDs()
	for _, fid := range factionIDs {
		s.FactionResources[fid] = map[string]int{}
		s.FactionPurchasedUnits[fid] = []UnitStack{}
	}

	setup := defs.StartingSetup
	if setup != nil && len(setup.TerritoryOwners) > 0 {
		for territoryID, owner := range setup.TerritoryOwners {
			if t, ok := s.Territories[territoryID]; ok {
				t.Owner = owner
				t.OriginalOwner = owner
			}
		}
	} else {
		for _, fid := range factionIDs {
			fd := defs.Factions[fid]
			if t, ok := s.Territories[fd.Capital]; ok {
				t.Owner = fid
				t.OriginalOwner = fid
			}
		}
	}

	// Starting resources: one turn of production from owned territories.
	for territoryID, t := range s.Territories {
		if t.Owner == "" {
			continue
		}
		resources, ok := s.FactionResources[t.Owner]
		if !ok {
			continue
		}
		td := defs.Territories[territoryID]
		if td == nil {
			continue
		}
		for resource, amount := range td.Produces {
			resources[resource] += amount
		}
	}

	if setup != nil {
		units := make([]string, 0, len(setup.StartingUnits))
		for territoryID := range setup.StartingUnits {
			units = append(units, territoryID)
		}
		sort.Strings(units)
		for _, territoryID := range units {
			t, ok := s.Territories[territoryID]
			if !ok || t.Owner == "" {
				continue
			}
			for _, stack := range setup.StartingUnits[territoryID] {
				ud := defs.Units[stack.UnitID]
				if ud == nil {
					continue
				}
				for i := 0; i < stack.Count; i++ {
					t.Units = append(t.Units, &Unit{
						InstanceID:        s.GenerateInstanceID(t.Owner, stack.UnitID),
						UnitID:            stack.UnitID,
						RemainingMovement: ud.Movement,
						RemainingHealth:   ud.Health,
						BaseMovement:      ud.Movement,
						BaseHealth:        ud.Health,
					})
				}
			}
		}
	}

	// Every setup-defined camp starts standing.
	campIDs := make([]string, 0, len(defs.Camps))
	for campID := range defs.Camps {
		campIDs = append(campIDs, campID)
	}
	sort.Strings(campIDs)
	s.CampsStanding = campIDs

	var firstFaction string
	if setup != nil && len(setup.TurnOrder) > 0 {
		firstFaction = setup.TurnOrder[0]
	} else if len(factionIDs) > 0 {
		firstFaction = factionIDs[0]
	}
	s.CurrentFaction = firstFaction

	var owned []string
	for _, tid := range s.SortedTerritoryIDs() {
		if s.Territories[tid].Owner == firstFaction {
			owned = append(owned, tid)
		}
	}
	s.FactionTerritoriesAtTurnStart[firstFaction] = owned

	var mobilization []string
	for _, tid := range owned {
		if TerritoryHasStandingCamp(s, tid, defs.Camps) {
			mobilization = append(mobilization, tid)
		}
	}
	s.MobilizationCamps = mobilization

	return s
}
