package warfront

// ReachabilityPhase distinguishes the two movement phases: combat_move
// allows passage into and onto enemy territory, non_combat_move never does.
type ReachabilityPhase string

const (
	ReachCombatMove    ReachabilityPhase = PhaseCombatMove
	ReachNonCombatMove ReachabilityPhase = PhaseNonCombatMove
)

// ReachableTerritory describes one destination found by BFS: the shortest
// distance, and for cavalry, every distinct charge-through route that
// reaches it (each route is the ordered list of empty-enemy territories
// charged through along the way, never including the destination itself).
type ReachableTerritory struct {
	Distance     int
	ChargeRoutes [][]string
}

type bfsNode struct {
	territoryID string
	distance    int
	chargePath  []string
}

// ReachableTerritoriesForUnit runs a breadth-first search from start over
// the territory graph for a single unit, gated by phase, alliance, and
// archetype:
//
//   - aerial units pass through anything, in either movement phase.
//   - cavalry units may, only during combat_move, pass through empty
//     enemy territory (a "charge"), recording the hop in the returned
//     charge route.
//   - non-aerial, non-charging units may never pass through occupied enemy
//     territory, and may never pass through neutral territory that contains
//     any enemy-aligned units.
//   - during combat_move the only valid destinations are enemy or
//     enemy-occupied-neutral territory; during non_combat_move the only
//     valid destinations are friendly, allied, or empty neutral territory.
//
// remainingMovement bounds search depth. The unit's own territory is never
// returned as a destination.
func ReachableTerritoriesForUnit(
	unit *Unit,
	start string,
	remainingMovement int,
	state *GameState,
	unitDefs map[string]*UnitDefinition,
	territoryDefs map[string]*TerritoryDefinition,
	factionDefs map[string]*FactionDefinition,
	phase ReachabilityPhase,
) map[string]*ReachableTerritory {
	faction := unit.Faction()
	alliance := allianceOf(faction, factionDefs)

	ud := unitDefs[unit.UnitID]
	aerial := ud != nil && (ud.Archetype == ArchetypeAerial || ud.HasTag("aerial"))
	cavalry := ud != nil && (ud.Archetype == ArchetypeCavalry || ud.HasTag("cavalry"))
	canEnterEnemy := phase == ReachCombatMove

	result := map[string]*ReachableTerritory{}
	visitedPlain := map[string]bool{start: true}
	visitedCharge := map[string]bool{}

	queue := []bfsNode{{territoryID: start, distance: 0, chargePath: nil}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.distance >= remainingMovement {
			continue
		}

		td := territoryDefs[node.territoryID]
		if td == nil {
			continue
		}

		for _, neighborID := range td.Adjacent {
			neighbor := state.Territories[neighborID]
			if neighbor == nil {
				continue
			}

			isEnemy, neutralHasEnemies := classifyTerritory(neighbor, alliance, factionDefs)
			isEmpty := len(neighbor.Units) == 0
			isNeutral := neighbor.Owner == ""

			nextChargePath := node.chargePath

			var canPass bool
			switch {
			case aerial:
				canPass = true
			case isEnemy && isEmpty && canEnterEnemy && cavalry:
				// Cavalry charge: pass over the empty enemy territory,
				// recording it on the route. It is conquered at apply time.
				nextChargePath = append(append([]string(nil), node.chargePath...), neighborID)
				canPass = true
			case isEnemy:
				// Enemy territory is otherwise a destination-only stop.
				canPass = false
			case isNeutral && neutralHasEnemies:
				canPass = false
			case isNeutral:
				// Empty neutral is only a corridor when no combat is sought.
				canPass = phase == ReachNonCombatMove
			default:
				// Friendly or allied.
				canPass = true
			}

			dist := node.distance + 1

			var visitKey string
			if cavalry {
				visitKey = neighborID + "|" + joinPath(nextChargePath)
			} else {
				visitKey = neighborID
			}

			rt := result[neighborID]
			if rt == nil {
				rt = &ReachableTerritory{Distance: dist}
				result[neighborID] = rt
			} else if dist < rt.Distance {
				rt.Distance = dist
			}
			if cavalry && canEnterEnemy {
				route := append([]string(nil), node.chargePath...)
				duplicate := false
				for _, existing := range rt.ChargeRoutes {
					if stringSlicesEqual(existing, route) {
						duplicate = true
						break
					}
				}
				if !duplicate {
					rt.ChargeRoutes = append(rt.ChargeRoutes, route)
				}
			}

			if canPass && dist <= remainingMovement {
				if cavalry {
					if !visitedCharge[visitKey] {
						visitedCharge[visitKey] = true
						queue = append(queue, bfsNode{territoryID: neighborID, distance: dist, chargePath: nextChargePath})
					}
				} else {
					if !visitedPlain[visitKey] {
						visitedPlain[visitKey] = true
						queue = append(queue, bfsNode{territoryID: neighborID, distance: dist, chargePath: nextChargePath})
					}
				}
			}
		}
	}

	filtered := map[string]*ReachableTerritory{}
	for tid, rt := range result {
		if tid == start {
			continue
		}
		neighbor := state.Territories[tid]
		if neighbor == nil {
			continue
		}
		isEnemy, neutralHasEnemies := classifyTerritory(neighbor, alliance, factionDefs)

		var keep bool
		if phase == ReachCombatMove {
			keep = isEnemy || neutralHasEnemies
		} else {
			keep = !isEnemy && !neutralHasEnemies
		}
		if keep {
			filtered[tid] = rt
		}
	}
	return filtered
}

// classifyTerritory reports whether a territory is enemy-owned (by
// alliance) and, for unowned/neutral territory, whether any unit occupying
// it belongs to a hostile (non-allied) faction. A unit whose faction is
// unrecognized is treated as hostile.
func classifyTerritory(t *TerritoryState, myAlliance string, factionDefs map[string]*FactionDefinition) (isEnemy bool, neutralHasEnemies bool) {
	if t.Owner != "" {
		ownerAlliance := allianceOf(t.Owner, factionDefs)
		return ownerAlliance != myAlliance, false
	}
	for _, u := range t.Units {
		unitAlliance, known := factionAlliance(u.Faction(), factionDefs)
		if !known || unitAlliance != myAlliance {
			return false, true
		}
	}
	return false, false
}

func allianceOf(factionID string, factionDefs map[string]*FactionDefinition) string {
	if fd, ok := factionDefs[factionID]; ok {
		return fd.Alliance
	}
	return ""
}

func factionAlliance(factionID string, factionDefs map[string]*FactionDefinition) (string, bool) {
	fd, ok := factionDefs[factionID]
	if !ok {
		return "", false
	}
	return fd.Alliance, true
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += ">"
		}
		out += p
	}
	return out
}

// CalculateMovementCost returns the shortest unweighted hop distance from
// start to end over the territory adjacency graph, ignoring ownership and
// occupancy (used once a move has been committed, to deduct remaining
// movement). Returns (0, false) if end is unreachable.
func CalculateMovementCost(start, end string, territoryDefs map[string]*TerritoryDefinition) (int, bool) {
	if start == end {
		return 0, true
	}
	visited := map[string]bool{start: true}
	queue := []struct {
		id   string
		dist int
	}{{start, 0}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		td := territoryDefs[node.id]
		if td == nil {
			continue
		}
		for _, neighbor := range td.Adjacent {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			if neighbor == end {
				return node.dist + 1, true
			}
			queue = append(queue, struct {
				id   string
				dist int
			}{neighbor, node.dist + 1})
		}
	}
	return 0, false
}
