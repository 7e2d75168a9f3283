package warfront

import (
	"sort"
	"strings"
)

// phaseAllowedActions is the per-phase action allow-list. Within the
// combat phase the allow-list is further narrowed by whether a combat is
// active (see validateActionForPhase).
var phaseAllowedActions = map[string][]string{
	PhasePurchase:      {ActionPurchaseUnits, ActionPurchaseCamp, ActionEndPhase},
	PhaseCombatMove:    {ActionMoveUnits, ActionCancelMove, ActionEndPhase},
	PhaseCombat:        {ActionInitiateCombat, ActionContinueCombat, ActionRetreat, ActionEndPhase},
	PhaseNonCombatMove: {ActionMoveUnits, ActionCancelMove, ActionEndPhase},
	PhaseMobilization:  {ActionMobilizeUnits, ActionPlaceCamp, ActionCancelMobilization, ActionEndPhase, ActionEndTurn},
}

func validateActionForPhase(action Action, state *GameState) *Error {
	allowed := phaseAllowedActions[state.Phase]
	found := false
	for _, a := range allowed {
		if a == action.Type {
			found = true
			break
		}
	}
	if !found {
		return newErr(ErrPhaseNotAllowed, "action %q is not allowed in phase %q (allowed: %s)",
			action.Type, state.Phase, strings.Join(allowed, ", "))
	}

	if state.Phase == PhaseCombat {
		if state.ActiveCombat != nil {
			if action.Type != ActionContinueCombat && action.Type != ActionRetreat {
				return newErr(ErrCombatInProgress, "active combat in progress; must continue_combat or retreat, not %q", action.Type)
			}
		} else {
			if action.Type == ActionContinueCombat || action.Type == ActionRetreat {
				return newErr(ErrNoActiveCombat, "no active combat to %s", action.Type)
			}
		}
	}
	return nil
}

// ApplyAction validates and applies a single action, returning the
// successor state and the ordered events describing what happened. The
// input state is never modified, on success or failure; on failure the
// returned state is nil and err is a *Error with a stable code.
func ApplyAction(state *GameState, action Action, defs *Definitions) (*GameState, []GameEvent, error) {
	if state.Winner != "" {
		return nil, nil, newErr(ErrGameOver, "game is over: %s alliance has won", state.Winner)
	}
	if action.Faction != state.CurrentFaction {
		return nil, nil, newErr(ErrNotYourTurn, "action faction %s does not match current faction %s", action.Faction, state.CurrentFaction)
	}
	if err := validateActionForPhase(action, state); err != nil {
		return nil, nil, err
	}

	s := state.Clone()
	var events []GameEvent
	var err *Error

	switch action.Type {
	case ActionPurchaseUnits:
		events, err = handlePurchaseUnits(s, action, defs)
	case ActionPurchaseCamp:
		events, err = handlePurchaseCamp(s, action, defs)
	case ActionPlaceCamp:
		events, err = handlePlaceCamp(s, action, defs)
	case ActionMoveUnits:
		events, err = handleMoveUnits(s, action, defs)
	case ActionCancelMove:
		events, err = handleCancelMove(s, action)
	case ActionInitiateCombat:
		events, err = handleInitiateCombat(s, action, defs)
	case ActionContinueCombat:
		events, err = handleContinueCombat(s, action, defs)
	case ActionRetreat:
		events, err = handleRetreat(s, action, defs)
	case ActionMobilizeUnits:
		events, err = handleMobilizeUnits(s, action, defs)
	case ActionCancelMobilization:
		events, err = handleCancelMobilization(s, action)
	case ActionEndPhase:
		events, err = handleEndPhase(s, defs)
	case ActionEndTurn:
		events, err = handleEndTurn(s, defs)
	default:
		return nil, nil, newErr(ErrUnknownAction, "unknown action type: %q", action.Type)
	}

	if err != nil {
		return nil, nil, err
	}
	return s, events, nil
}

// ValidationResult mirrors the reducer's guards without mutation.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Validate runs the full reducer path against a clone and reports whether
// the action would succeed. Validator and reducer agree by construction.
func Validate(state *GameState, action Action, defs *Definitions) ValidationResult {
	_, _, err := ApplyAction(state, action, defs)
	if err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	return ValidationResult{Valid: true}
}

// Replay applies a sequence of actions to an initial state, returning the
// final state and the concatenation of all event lists. Given the same
// inputs it always produces the same outputs.
func Replay(initial *GameState, actions []Action, defs *Definitions) (*GameState, []GameEvent, error) {
	current := initial
	var all []GameEvent
	for _, a := range actions {
		next, events, err := ApplyAction(current, a, defs)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, events...)
		current = next
	}
	return current, all, nil
}

func handlePurchaseUnits(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent
	factionID := action.Faction
	purchases := action.Payload.Purchases

	if !FactionOwnsCapital(s, factionID, defs) {
		return nil, newErr(ErrCapitalLost, "cannot purchase units: %s's capital has been captured", factionID)
	}

	unitIDs := make([]string, 0, len(purchases))
	for uid := range purchases {
		unitIDs = append(unitIDs, uid)
	}
	sort.Strings(unitIDs)

	totalCost := map[string]int{}
	requested := 0
	for _, unitID := range unitIDs {
		count := purchases[unitID]
		if count <= 0 {
			continue
		}
		ud, ok := defs.Units[unitID]
		if !ok {
			return nil, newErr(ErrUnknownUnit, "unknown unit: %s", unitID)
		}
		if !ud.Purchasable {
			return nil, newErr(ErrUnitNotPurchasable, "unit %s is not purchasable", unitID)
		}
		if ud.Faction != factionID {
			return nil, newErr(ErrUnitNotOfFaction, "faction %s cannot purchase %s", factionID, unitID)
		}
		for resource, amount := range ud.Cost {
			totalCost[resource] += amount * count
		}
		requested += count
	}

	resources := s.FactionResources[factionID]
	costResources := make([]string, 0, len(totalCost))
	for r := range totalCost {
		costResources = append(costResources, r)
	}
	sort.Strings(costResources)
	for _, resource := range costResources {
		need := totalCost[resource]
		have := resources[resource]
		if have < need {
			return nil, newErr(ErrInsufficientResource, "insufficient %s: have %d, need %d", resource, have, need)
		}
	}

	// The pool may never outgrow what this turn's camps can deploy.
	pooled := 0
	for _, stack := range s.FactionPurchasedUnits[factionID] {
		pooled += stack.Count
	}
	capacity := mobilizationCapacity(s, defs)
	if pooled+requested > capacity {
		return nil, newErr(ErrMobilizationCapacityExceeded,
			"cannot purchase %d units: %d already purchased, mobilization capacity is %d", requested, pooled, capacity)
	}

	if resources == nil {
		resources = map[string]int{}
		s.FactionResources[factionID] = resources
	}
	for _, resource := range costResources {
		oldValue := resources[resource]
		resources[resource] -= totalCost[resource]
		events = append(events, resourcesChangedEvent(factionID, resource, oldValue, resources[resource], "purchase"))
	}

	for _, unitID := range unitIDs {
		count := purchases[unitID]
		if count <= 0 {
			continue
		}
		mergeIntoPool(s, factionID, unitID, count)
	}

	events = append(events, unitsPurchasedEvent(factionID, purchases, totalCost))
	return events, nil
}

func mergeIntoPool(s *GameState, factionID, unitID string, count int) {
	pool := s.FactionPurchasedUnits[factionID]
	for i := range pool {
		if pool[i].UnitID == unitID {
			pool[i].Count += count
			return
		}
	}
	s.FactionPurchasedUnits[factionID] = append(pool, UnitStack{UnitID: unitID, Count: count})
}

// mobilizationCapacity sums the power production of this turn's
// mobilization camps.
func mobilizationCapacity(s *GameState, defs *Definitions) int {
	total := 0
	for _, tid := range s.MobilizationCamps {
		if td, ok := defs.Territories[tid]; ok {
			total += td.Produces["power"]
		}
	}
	return total
}

func handlePurchaseCamp(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent
	factionID := action.Faction

	cost := s.CampCost
	power := s.FactionResources[factionID]["power"]
	if power < cost {
		return nil, newErr(ErrInsufficientResource, "insufficient power for camp: have %d, need %d", power, cost)
	}

	alreadyChosen := map[string]bool{}
	for _, pc := range s.PendingCamps {
		if pc.PlacedTerritoryID != "" {
			alreadyChosen[pc.PlacedTerritoryID] = true
		}
	}
	var options []string
	for _, tid := range s.FactionTerritoriesAtTurnStart[factionID] {
		if TerritoryHasStandingCamp(s, tid, defs.Camps) || alreadyChosen[tid] {
			continue
		}
		if td, ok := defs.Territories[tid]; !ok || !td.Ownable {
			continue
		}
		options = append(options, tid)
	}
	if len(options) == 0 {
		return nil, newErr(ErrNoCampPlacementOptions, "no valid territory to place a camp")
	}

	if s.FactionResources[factionID] == nil {
		s.FactionResources[factionID] = map[string]int{}
	}
	s.FactionResources[factionID]["power"] = power - cost
	events = append(events, resourcesChangedEvent(factionID, "power", power, power-cost, "purchase_camp"))

	s.PendingCamps = append(s.PendingCamps, PendingCamp{TerritoryOptions: options})
	return events, nil
}

func handlePlaceCamp(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	idx := action.Payload.CampIndex
	territoryID := action.Payload.TerritoryID

	if idx < 0 || idx >= len(s.PendingCamps) {
		return nil, newErr(ErrInvalidIndex, "invalid camp_index %d; have %d pending camps", idx, len(s.PendingCamps))
	}
	pending := &s.PendingCamps[idx]
	if pending.PlacedTerritoryID != "" {
		return nil, newErr(ErrCampAlreadyPlaced, "pending camp %d has already been placed", idx)
	}
	inOptions := false
	for _, tid := range pending.TerritoryOptions {
		if tid == territoryID {
			inOptions = true
			break
		}
	}
	if !inOptions {
		return nil, newErr(ErrCampPlacementInvalid, "territory %s is not a valid placement for this camp", territoryID)
	}
	if TerritoryHasStandingCamp(s, territoryID, defs.Camps) {
		return nil, newErr(ErrCampPlacementInvalid, "territory %s already has a camp", territoryID)
	}

	// Takes effect next turn: mobilization_camps stays fixed for this one.
	campID := "purchased_camp_" + territoryID
	s.DynamicCamps[campID] = territoryID
	s.CampsStanding = append(s.CampsStanding, campID)
	pending.PlacedTerritoryID = territoryID
	return nil, nil
}

func handleMoveUnits(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent
	factionID := action.Faction
	fromID := action.Payload.From
	toID := action.Payload.To
	instanceIDs := action.Payload.UnitInstanceIDs
	chargeThrough := action.Payload.ChargeThrough

	fromTerritory, okFrom := s.Territories[fromID]
	_, okTo := s.Territories[toID]
	if !okFrom || !okTo || fromID == toID {
		return nil, newErr(ErrInvalidTerritory, "invalid territory: %s or %s", fromID, toID)
	}
	if len(instanceIDs) == 0 {
		return nil, newErr(ErrNoUnits, "no units specified to move")
	}

	unitsByID := map[string]*Unit{}
	for _, u := range fromTerritory.Units {
		unitsByID[u.InstanceID] = u
	}
	alreadyPending := map[string]bool{}
	for _, pm := range s.PendingMoves {
		for _, iid := range pm.UnitInstanceIDs {
			alreadyPending[iid] = true
		}
	}

	var unitsToMove []*Unit
	for _, iid := range instanceIDs {
		if alreadyPending[iid] {
			return nil, newErr(ErrUnitAlreadyPending, "unit %s already has a pending move", iid)
		}
		u, ok := unitsByID[iid]
		if !ok {
			return nil, newErr(ErrUnitNotFound, "unit %s not found in %s", iid, fromID)
		}
		if u.Faction() != factionID {
			return nil, newErr(ErrUnitNotOwned, "unit %s does not belong to %s", iid, factionID)
		}
		unitsToMove = append(unitsToMove, u)
	}

	var leaderReachable map[string]*ReachableTerritory
	for i, u := range unitsToMove {
		reachable := ReachableTerritoriesForUnit(
			u, fromID, u.RemainingMovement, s,
			defs.Units, defs.Territories, defs.Factions,
			ReachabilityPhase(s.Phase),
		)
		if i == 0 {
			leaderReachable = reachable
		}
		if _, ok := reachable[toID]; !ok {
			return nil, newErr(ErrUnreachable, "unit %s cannot reach %s from %s (remaining_movement=%d, phase=%s)",
				u.InstanceID, toID, fromID, u.RemainingMovement, s.Phase)
		}
	}

	if len(chargeThrough) > 0 {
		valid := false
		if rt := leaderReachable[toID]; rt != nil {
			for _, route := range rt.ChargeRoutes {
				if stringSlicesEqual(route, chargeThrough) {
					valid = true
					break
				}
			}
		}
		if !valid {
			return nil, newErr(ErrInvalidChargeRoute, "invalid charge_through for %s: must be one of the valid charge routes", toID)
		}
	}

	s.PendingMoves = append(s.PendingMoves, PendingMove{
		FromTerritory:   fromID,
		ToTerritory:     toID,
		UnitInstanceIDs: append([]string(nil), instanceIDs...),
		Phase:           s.Phase,
		ChargeThrough:   append([]string(nil), chargeThrough...),
	})
	events = append(events, unitsMovedEvent(factionID, fromID, toID, instanceIDs, s.Phase))
	return events, nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func handleCancelMove(s *GameState, action Action) ([]GameEvent, *Error) {
	idx := action.Payload.MoveIndex
	if idx < 0 || idx >= len(s.PendingMoves) {
		return nil, newErr(ErrInvalidIndex, "invalid move index %d; have %d pending moves", idx, len(s.PendingMoves))
	}
	cancelled := s.PendingMoves[idx]
	s.PendingMoves = append(s.PendingMoves[:idx], s.PendingMoves[idx+1:]...)
	return []GameEvent{moveCancelledEvent(cancelled)}, nil
}

// applyPendingMoves executes all pending moves declared in the given
// phase. A unit no longer present in its source territory is silently
// skipped; an unreachable destination skips the whole move.
func applyPendingMoves(s *GameState, phase string, defs *Definitions) {
	var toApply, remaining []PendingMove
	for _, pm := range s.PendingMoves {
		if pm.Phase == phase {
			toApply = append(toApply, pm)
		} else {
			remaining = append(remaining, pm)
		}
	}
	s.PendingMoves = remaining

	for _, pm := range toApply {
		fromTerritory := s.Territories[pm.FromTerritory]
		toTerritory := s.Territories[pm.ToTerritory]
		if fromTerritory == nil || toTerritory == nil || fromTerritory == toTerritory || len(pm.UnitInstanceIDs) == 0 {
			continue
		}
		factionID := factionFromInstanceID(pm.UnitInstanceIDs[0])

		// Cavalry charge: conquer each empty enemy territory passed through.
		for _, tid := range pm.ChargeThrough {
			t := s.Territories[tid]
			td := defs.Territories[tid]
			if t != nil && td != nil && td.Ownable && t.Owner != "" && t.Owner != factionID {
				s.PendingCaptures[tid] = factionID
			}
		}

		distance, ok := CalculateMovementCost(pm.FromTerritory, pm.ToTerritory, defs.Territories)
		if !ok {
			continue
		}

		unitsByID := map[string]*Unit{}
		for _, u := range fromTerritory.Units {
			unitsByID[u.InstanceID] = u
		}
		moved := map[string]bool{}
		for _, iid := range pm.UnitInstanceIDs {
			u, ok := unitsByID[iid]
			if !ok {
				continue
			}
			u.RemainingMovement -= distance
			toTerritory.Units = append(toTerritory.Units, u)
			moved[iid] = true
		}
		if len(moved) > 0 {
			kept := fromTerritory.Units[:0]
			for _, u := range fromTerritory.Units {
				if !moved[u.InstanceID] {
					kept = append(kept, u)
				}
			}
			fromTerritory.Units = kept
		}

		// Walking into an undefended enemy territory during combat_move is
		// a conquest without a fight.
		if phase == PhaseCombatMove && toTerritory.Owner != "" && toTerritory.Owner != factionID {
			td := defs.Territories[pm.ToTerritory]
			if td != nil && td.Ownable && allianceOf(toTerritory.Owner, defs.Factions) != allianceOf(factionID, defs.Factions) {
				hasEnemies := false
				for _, u := range toTerritory.Units {
					if u.Faction() != factionID {
						hasEnemies = true
						break
					}
				}
				if !hasEnemies {
					s.PendingCaptures[pm.ToTerritory] = factionID
				}
			}
		}
	}
}

func factionFromInstanceID(instanceID string) string {
	if idx := strings.Index(instanceID, "_"); idx >= 0 {
		return instanceID[:idx]
	}
	return instanceID
}

func handleMobilizeUnits(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	factionID := action.Faction
	destination := action.Payload.Destination
	requests := action.Payload.Units

	if len(requests) == 0 {
		return nil, newErr(ErrNoUnits, "no units specified to mobilize")
	}
	if !FactionOwnsCapital(s, factionID, defs) {
		return nil, newErr(ErrCapitalLost, "cannot mobilize units: %s's capital has been captured", factionID)
	}
	inCamps := false
	for _, tid := range s.MobilizationCamps {
		if tid == destination {
			inCamps = true
			break
		}
	}
	if !inCamps {
		return nil, newErr(ErrNotAMobilizationCamp, "cannot mobilize to %s: not an owned camp at start of turn", destination)
	}
	destTerritory := s.Territories[destination]
	destDef := defs.Territories[destination]
	if destTerritory == nil || destDef == nil {
		return nil, newErr(ErrInvalidTerritory, "territory %s does not exist", destination)
	}
	if !TerritoryHasStandingCamp(s, destination, defs.Camps) {
		return nil, newErr(ErrCampDestroyed, "territory %s has no standing camp", destination)
	}

	pool := s.FactionPurchasedUnits[factionID]
	totalMobilizing := 0
	for _, req := range requests {
		found := 0
		for _, stack := range pool {
			if stack.UnitID == req.UnitID {
				found = stack.Count
				break
			}
		}
		if found < req.Count {
			return nil, newErr(ErrInsufficientPurchased, "not enough purchased %s: have %d, need %d", req.UnitID, found, req.Count)
		}
		totalMobilizing += req.Count
	}
	powerProduction := destDef.Produces["power"]
	if totalMobilizing > powerProduction {
		return nil, newErr(ErrExceedsMobilizationPower, "cannot mobilize %d units: territory produces only %d power", totalMobilizing, powerProduction)
	}

	for _, req := range requests {
		for i := range pool {
			if pool[i].UnitID == req.UnitID {
				pool[i].Count -= req.Count
				break
			}
		}
	}
	pruned := pool[:0]
	for _, stack := range pool {
		if stack.Count > 0 {
			pruned = append(pruned, stack)
		}
	}
	s.FactionPurchasedUnits[factionID] = pruned

	s.PendingMobilizations = append(s.PendingMobilizations, PendingMobilization{
		Destination: destination,
		Units:       unitStacksFromInputs(requests),
	})
	return nil, nil
}

func unitStacksFromInputs(in []UnitStackInput) []UnitStack {
	out := make([]UnitStack, 0, len(in))
	for _, r := range in {
		out = append(out, UnitStack{UnitID: r.UnitID, Count: r.Count})
	}
	return out
}

func handleCancelMobilization(s *GameState, action Action) ([]GameEvent, *Error) {
	idx := action.Payload.MobilizationIndex
	if idx < 0 || idx >= len(s.PendingMobilizations) {
		return nil, newErr(ErrInvalidIndex, "invalid mobilization index %d; have %d pending", idx, len(s.PendingMobilizations))
	}
	cancelled := s.PendingMobilizations[idx]
	s.PendingMobilizations = append(s.PendingMobilizations[:idx], s.PendingMobilizations[idx+1:]...)

	factionID := s.CurrentFaction
	for _, stack := range cancelled.Units {
		mergeIntoPool(s, factionID, stack.UnitID, stack.Count)
	}
	return []GameEvent{{Type: EventMoveCancelled, Payload: map[string]any{
		"kind":        "mobilization",
		"destination": cancelled.Destination,
		"units":       cancelled.Units,
	}}}, nil
}

func applyPendingMobilizations(s *GameState, defs *Definitions) []GameEvent {
	var events []GameEvent
	factionID := s.CurrentFaction
	for _, pending := range s.PendingMobilizations {
		destTerritory := s.Territories[pending.Destination]
		if destTerritory == nil {
			continue
		}
		var mobilized []map[string]string
		for _, stack := range pending.Units {
			ud := defs.Units[stack.UnitID]
			if ud == nil {
				continue
			}
			for i := 0; i < stack.Count; i++ {
				instanceID := s.GenerateInstanceID(factionID, stack.UnitID)
				destTerritory.Units = append(destTerritory.Units, &Unit{
					InstanceID:        instanceID,
					UnitID:            stack.UnitID,
					RemainingMovement: ud.Movement,
					RemainingHealth:   ud.Health,
					BaseMovement:      ud.Movement,
					BaseHealth:        ud.Health,
				})
				mobilized = append(mobilized, map[string]string{"unit_id": stack.UnitID, "instance_id": instanceID})
			}
		}
		if len(mobilized) > 0 {
			events = append(events, unitsMobilizedEvent(factionID, pending.Destination, mobilized))
		}
	}
	s.PendingMobilizations = nil
	return events
}

// combatCopies partitions a contested territory's units into attacker and
// defender copies. Combat rounds mutate the copies; survivors are synced
// back with syncSurvivorHealth.
func combatCopies(territory *TerritoryState, isAttacker func(*Unit) bool, isDefender func(*Unit) bool) (attackers, defenders []*Unit) {
	for _, u := range territory.Units {
		switch {
		case isAttacker(u):
			attackers = append(attackers, u.clone())
		case isDefender(u):
			defenders = append(defenders, u.clone())
		}
	}
	return attackers, defenders
}

func combinedModifiers(territoryDef *TerritoryDefinition, attackers, defenders []*Unit, unitDefs map[string]*UnitDefinition) (map[string]int, map[string]int) {
	terrainAtt, terrainDef := ComputeTerrainStatModifiers(territoryDef, attackers, defenders, unitDefs)
	antiCavAtt, antiCavDef := ComputeAntiCavalryStatModifiers(attackers, defenders, unitDefs)
	captainAtt, captainDef := ComputeCaptainStatModifiers(attackers, defenders, unitDefs)
	return MergeStatModifiers(terrainAtt, antiCavAtt, captainAtt), MergeStatModifiers(terrainDef, antiCavDef, captainDef)
}

func payloadRolls(action Action) DiceRolls {
	if action.Payload.DiceRolls != nil {
		return *action.Payload.DiceRolls
	}
	return DiceRolls{}
}

func handleInitiateCombat(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent
	attackerFaction := action.Faction
	territoryID := action.Payload.TerritoryID
	rolls := payloadRolls(action)

	territory := s.Territories[territoryID]
	if territory == nil {
		return nil, newErr(ErrInvalidTerritory, "invalid territory: %s", territoryID)
	}
	if territory.Owner == attackerFaction {
		return nil, newErr(ErrCannotAttackOwn, "cannot attack own territory %s", territoryID)
	}
	defenderFaction := territory.Owner

	attackers, defenders := combatCopies(territory,
		func(u *Unit) bool { return u.Faction() == attackerFaction },
		func(u *Unit) bool { return u.Faction() == territory.Owner },
	)
	if len(attackers) == 0 {
		return nil, newErr(ErrNoAttackers, "no attacking units in %s", territoryID)
	}
	if len(defenders) == 0 {
		return nil, newErr(ErrNoDefenders, "no defending units in %s", territoryID)
	}

	attackerIDs := instanceIDs(attackers)
	defenderIDs := instanceIDs(defenders)
	events = append(events, combatStartedEvent(territoryID, attackerFaction, attackerIDs, defenderFaction, defenderIDs))

	territoryDef := defs.Territories[territoryID]
	attackerMods, defenderMods := combinedModifiers(territoryDef, attackers, defenders, defs.Units)

	var defenderArchers []*Unit
	for _, u := range defenders {
		if ud := defs.Units[u.UnitID]; ud != nil && ud.Archetype == ArchetypeArcher {
			defenderArchers = append(defenderArchers, u)
		}
	}

	if len(defenderArchers) > 0 {
		result := ResolveArcherPrefire(&attackers, defenderArchers, defs.Units, rolls.Defender, defenderMods)

		archerMods := map[string]int{}
		for _, u := range defenderArchers {
			archerMods[u.InstanceID] = -1 + defenderMods[u.InstanceID]
		}
		defenderDice := GroupDiceByStat(defenderArchers, rolls.Defender, defs.Units, false, archerMods)

		prefireEntry := CombatRoundResult{
			RoundNumber:        0,
			AttackerRolls:      []int{},
			DefenderRolls:      rolls.Defender,
			DefenderHits:       result.DefenderHits,
			AttackerCasualties: result.AttackerCasualties,
			DefenderCasualties: []string{},
			AttackersRemaining: len(result.SurvivingAttackerIDs),
			DefendersRemaining: len(defenders),
			IsArcherPrefire:    true,
		}
		prefireResult := result
		prefireResult.SurvivingDefenderIDs = defenderIDs
		events = append(events, combatRoundResolvedEvent(territoryID, 0, map[int]DiceGroup{}, defenderDice, prefireResult, nil, nil, true))
		events = append(events, casualtyEvents(result.AttackerCasualties, attackerFaction, territoryID)...)

		removeCasualties(territory, result.AttackerCasualties)
		syncSurvivorHealth(territory, attackers, defenders)

		if result.AttackersEliminated {
			endResult := RoundResult{
				DefenderHits:         result.DefenderHits,
				AttackerCasualties:   result.AttackerCasualties,
				SurvivingDefenderIDs: defenderIDs,
				AttackersEliminated:  true,
			}
			events = append(events, resolveCombatEnd(s, attackerFaction, territoryID, endResult, 1, defs)...)
			return events, nil
		}

		s.ActiveCombat = &ActiveCombat{
			AttackerFaction:     attackerFaction,
			TerritoryID:         territoryID,
			AttackerInstanceIDs: result.SurvivingAttackerIDs,
			RoundNumber:         0,
			CombatLog:           []CombatRoundResult{prefireEntry},
			AttackersHaveRolled: false,
		}
		return events, nil
	}

	attackerDice := GroupDiceByStat(attackers, rolls.Attacker, defs.Units, true, attackerMods)
	defenderDice := GroupDiceByStat(defenders, rolls.Defender, defs.Units, false, defenderMods)

	result := ResolveCombatRound(&attackers, &defenders, defs.Units, rolls, attackerMods, defenderMods)

	logEntry := CombatRoundResult{
		RoundNumber:        1,
		AttackerRolls:      rolls.Attacker,
		DefenderRolls:      rolls.Defender,
		AttackerHits:       result.AttackerHits,
		DefenderHits:       result.DefenderHits,
		AttackerCasualties: result.AttackerCasualties,
		DefenderCasualties: result.DefenderCasualties,
		AttackersRemaining: len(result.SurvivingAttackerIDs),
		DefendersRemaining: len(result.SurvivingDefenderIDs),
	}

	events = append(events, combatRoundResolvedEvent(territoryID, 1, attackerDice, defenderDice, result, nil, nil, false))
	events = append(events, casualtyEvents(result.AttackerCasualties, attackerFaction, territoryID)...)
	events = append(events, casualtyEvents(result.DefenderCasualties, defenderFaction, territoryID)...)

	removeCasualties(territory, result.AttackerCasualties)
	removeCasualties(territory, result.DefenderCasualties)
	syncSurvivorHealth(territory, attackers, defenders)

	if result.AttackersEliminated || result.DefendersEliminated {
		events = append(events, resolveCombatEnd(s, attackerFaction, territoryID, result, 1, defs)...)
		return events, nil
	}

	s.ActiveCombat = &ActiveCombat{
		AttackerFaction:     attackerFaction,
		TerritoryID:         territoryID,
		AttackerInstanceIDs: result.SurvivingAttackerIDs,
		RoundNumber:         1,
		CombatLog:           []CombatRoundResult{logEntry},
		AttackersHaveRolled: true,
	}
	return events, nil
}

func handleContinueCombat(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent
	rolls := payloadRolls(action)
	combat := s.ActiveCombat
	territory := s.Territories[combat.TerritoryID]
	if territory == nil {
		return nil, newErr(ErrInvalidTerritory, "active combat territory %s does not exist", combat.TerritoryID)
	}
	defenderFaction := territory.Owner

	survivingAttackers := map[string]bool{}
	for _, iid := range combat.AttackerInstanceIDs {
		survivingAttackers[iid] = true
	}
	attackers, defenders := combatCopies(territory,
		func(u *Unit) bool { return survivingAttackers[u.InstanceID] },
		func(u *Unit) bool { return true },
	)

	territoryDef := defs.Territories[combat.TerritoryID]
	attackerMods, defenderMods := combinedModifiers(territoryDef, attackers, defenders, defs.Units)

	// Grouped dice and base-health snapshots are taken before resolution
	// mutates the copies.
	attackerDice := GroupDiceByStat(attackers, rolls.Attacker, defs.Units, true, attackerMods)
	defenderDice := GroupDiceByStat(defenders, rolls.Defender, defs.Units, false, defenderMods)
	attackerTypeHealth := typeHealthIndex(attackers)
	defenderTypeHealth := typeHealthIndex(defenders)

	result := ResolveCombatRound(&attackers, &defenders, defs.Units, rolls, attackerMods, defenderMods)

	attackerHitsByType := hitsByUnitType(result.AttackerCasualties, result.AttackerWounded, attackerTypeHealth)
	defenderHitsByType := hitsByUnitType(result.DefenderCasualties, result.DefenderWounded, defenderTypeHealth)

	newRound := combat.RoundNumber + 1
	logEntry := CombatRoundResult{
		RoundNumber:        newRound,
		AttackerRolls:      rolls.Attacker,
		DefenderRolls:      rolls.Defender,
		AttackerHits:       result.AttackerHits,
		DefenderHits:       result.DefenderHits,
		AttackerCasualties: result.AttackerCasualties,
		DefenderCasualties: result.DefenderCasualties,
		AttackersRemaining: len(result.SurvivingAttackerIDs),
		DefendersRemaining: len(result.SurvivingDefenderIDs),
	}

	events = append(events, combatRoundResolvedEvent(combat.TerritoryID, newRound, attackerDice, defenderDice, result, attackerHitsByType, defenderHitsByType, false))
	events = append(events, casualtyEvents(result.AttackerCasualties, combat.AttackerFaction, combat.TerritoryID)...)
	events = append(events, casualtyEvents(result.DefenderCasualties, defenderFaction, combat.TerritoryID)...)

	removeCasualties(territory, result.AttackerCasualties)
	removeCasualties(territory, result.DefenderCasualties)
	syncSurvivorHealth(territory, attackers, defenders)

	combat.CombatLog = append(combat.CombatLog, logEntry)
	combat.RoundNumber = newRound
	combat.AttackerInstanceIDs = result.SurvivingAttackerIDs
	combat.AttackersHaveRolled = true

	if result.AttackersEliminated || result.DefendersEliminated {
		events = append(events, resolveCombatEnd(s, combat.AttackerFaction, combat.TerritoryID, result, len(combat.CombatLog), defs)...)
		return events, nil
	}
	return events, nil
}

type unitTypeHealth struct {
	unitID     string
	baseHealth int
}

func typeHealthIndex(units []*Unit) map[string]unitTypeHealth {
	out := map[string]unitTypeHealth{}
	for _, u := range units {
		out[u.InstanceID] = unitTypeHealth{unitID: u.UnitID, baseHealth: u.BaseHealth}
	}
	return out
}

// hitsByUnitType aggregates damage per unit type for UI hit badges: a
// casualty contributes its base health, a wounded survivor contributes 1.
func hitsByUnitType(casualties, wounded []string, idx map[string]unitTypeHealth) map[string]int {
	out := map[string]int{}
	for _, iid := range casualties {
		if th, ok := idx[iid]; ok {
			out[th.unitID] += th.baseHealth
		}
	}
	for _, iid := range wounded {
		if th, ok := idx[iid]; ok {
			out[th.unitID]++
		}
	}
	return out
}

func casualtyEvents(casualties []string, faction, territoryID string) []GameEvent {
	var events []GameEvent
	for _, iid := range casualties {
		parts := strings.Split(iid, "_")
		unitType := "unknown"
		if len(parts) > 1 {
			unitType = strings.Join(parts[1:len(parts)-1], "_")
		}
		events = append(events, unitDestroyedEvent(iid, unitType, faction, territoryID, "combat"))
	}
	return events
}

func removeCasualties(territory *TerritoryState, casualtyIDs []string) {
	if len(casualtyIDs) == 0 {
		return
	}
	dead := map[string]bool{}
	for _, iid := range casualtyIDs {
		dead[iid] = true
	}
	kept := territory.Units[:0]
	for _, u := range territory.Units {
		if !dead[u.InstanceID] {
			kept = append(kept, u)
		}
	}
	territory.Units = kept
}

// syncSurvivorHealth writes remaining_health from the combat copies back
// onto the territory's units so multi-HP survivors carry damage forward.
func syncSurvivorHealth(territory *TerritoryState, attackers, defenders []*Unit) {
	health := map[string]int{}
	for _, u := range attackers {
		health[u.InstanceID] = u.RemainingHealth
	}
	for _, u := range defenders {
		health[u.InstanceID] = u.RemainingHealth
	}
	for _, u := range territory.Units {
		if h, ok := health[u.InstanceID]; ok {
			u.RemainingHealth = h
		}
	}
}

func handleRetreat(s *GameState, action Action, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent
	combat := s.ActiveCombat
	if !combat.AttackersHaveRolled {
		return nil, newErr(ErrCannotRetreatBeforeRolling, "cannot retreat until attackers have rolled")
	}

	retreatTo := action.Payload.RetreatTo
	retreatTerritory := s.Territories[retreatTo]
	if retreatTo == "" || retreatTerritory == nil {
		return nil, newErr(ErrInvalidTerritory, "invalid retreat territory: %s", retreatTo)
	}
	if !territoryIsFriendlyForRetreat(retreatTerritory, combat.AttackerFaction, defs.Factions) {
		return nil, newErr(ErrRetreatDestinationInvalid, "cannot retreat to %s: must be allied or friendly neutral", retreatTo)
	}
	combatTerritoryDef := defs.Territories[combat.TerritoryID]
	adjacent := false
	if combatTerritoryDef != nil {
		for _, tid := range combatTerritoryDef.Adjacent {
			if tid == retreatTo {
				adjacent = true
				break
			}
		}
	}
	if !adjacent {
		return nil, newErr(ErrRetreatDestinationInvalid, "cannot retreat to %s: not adjacent to %s", retreatTo, combat.TerritoryID)
	}

	combatTerritory := s.Territories[combat.TerritoryID]
	surviving := map[string]bool{}
	for _, iid := range combat.AttackerInstanceIDs {
		surviving[iid] = true
	}
	var movedIDs []string
	kept := combatTerritory.Units[:0]
	for _, u := range combatTerritory.Units {
		if surviving[u.InstanceID] {
			retreatTerritory.Units = append(retreatTerritory.Units, u)
			movedIDs = append(movedIDs, u.InstanceID)
		} else {
			kept = append(kept, u)
		}
	}
	combatTerritory.Units = kept

	events = append(events, unitsRetreatedEvent(combat.AttackerFaction, combat.TerritoryID, retreatTo, movedIDs))
	events = append(events, combatEndedEvent(
		combat.TerritoryID, "defender", combat.AttackerFaction, combatTerritory.Owner,
		nil, instanceIDs(combatTerritory.Units), combat.RoundNumber,
	))
	s.ActiveCombat = nil
	return events, nil
}

// territoryIsFriendlyForRetreat reports whether a territory is a legal
// retreat destination: allied-owned, or neutral with no enemy units.
func territoryIsFriendlyForRetreat(t *TerritoryState, factionID string, factionDefs map[string]*FactionDefinition) bool {
	myAlliance := allianceOf(factionID, factionDefs)
	if t.Owner != "" {
		return allianceOf(t.Owner, factionDefs) == myAlliance
	}
	for _, u := range t.Units {
		unitAlliance, known := factionAlliance(u.Faction(), factionDefs)
		if !known || unitAlliance != myAlliance {
			return false
		}
	}
	return true
}

// resolveCombatEnd emits combat_ended and, on an attacker win over an
// ownable territory, queues the capture for the end of the combat phase.
func resolveCombatEnd(s *GameState, attackerFaction, territoryID string, result RoundResult, totalRounds int, defs *Definitions) []GameEvent {
	var events []GameEvent
	territory := s.Territories[territoryID]
	oldOwner := territory.Owner

	if result.DefendersEliminated && !result.AttackersEliminated {
		td := defs.Territories[territoryID]
		if territory.Owner != "" && td != nil && td.Ownable {
			s.PendingCaptures[territoryID] = attackerFaction
		}
		events = append(events, combatEndedEvent(territoryID, "attacker", attackerFaction, oldOwner, result.SurvivingAttackerIDs, nil, totalRounds))
	} else {
		// Mutual annihilation is a defender win: no conquest.
		events = append(events, combatEndedEvent(territoryID, "defender", attackerFaction, oldOwner, nil, result.SurvivingDefenderIDs, totalRounds))
	}
	s.ActiveCombat = nil
	return events
}

// applyPendingCaptures transfers ownership for every queued capture,
// honoring liberation: if the territory's original owner is a distinct
// ally of the capturer, it reverts to the original owner. Any camp on the
// territory is destroyed either way.
func applyPendingCaptures(s *GameState, defs *Definitions) []GameEvent {
	var events []GameEvent
	ids := make([]string, 0, len(s.PendingCaptures))
	for tid := range s.PendingCaptures {
		ids = append(ids, tid)
	}
	sort.Strings(ids)

	for _, territoryID := range ids {
		capturer := s.PendingCaptures[territoryID]
		territory := s.Territories[territoryID]
		if territory == nil {
			continue
		}
		oldOwner := territory.Owner

		newOwner := capturer
		if originalOwner := territory.OriginalOwner; originalOwner != "" && originalOwner != capturer {
			capturerDef := defs.Factions[capturer]
			originalDef := defs.Factions[originalOwner]
			if capturerDef != nil && originalDef != nil && capturerDef.Alliance == originalDef.Alliance {
				newOwner = originalOwner
			}
		}
		territory.Owner = newOwner

		kept := s.CampsStanding[:0]
		for _, campID := range s.CampsStanding {
			inTerritory := s.DynamicCamps[campID] == territoryID
			if cd, ok := defs.Camps[campID]; ok && cd.TerritoryID == territoryID {
				inTerritory = true
			}
			if !inTerritory {
				kept = append(kept, campID)
			}
		}
		s.CampsStanding = kept
		for campID, tid := range s.DynamicCamps {
			if tid == territoryID {
				delete(s.DynamicCamps, campID)
			}
		}

		events = append(events, territoryCapturedEvent(territoryID, oldOwner, newOwner, instanceIDs(territory.Units)))
	}
	s.PendingCaptures = map[string]string{}
	return events
}

func handleEndPhase(s *GameState, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent

	if s.Phase == PhaseCombat && s.ActiveCombat != nil {
		return nil, newErr(ErrCombatInProgress, "cannot end combat phase while combat is active")
	}

	oldPhase := s.Phase

	switch s.Phase {
	case PhaseCombatMove:
		applyPendingMoves(s, PhaseCombatMove, defs)
	case PhaseCombat:
		events = append(events, applyPendingCaptures(s, defs)...)
	case PhaseNonCombatMove:
		applyPendingMoves(s, PhaseNonCombatMove, defs)
		resetUnitStatsForFaction(s, s.CurrentFaction)
	case PhaseMobilization:
		events = append(events, applyPendingMobilizations(s, defs)...)
		events = append(events, phaseChangedEvent(oldPhase, "turn_end", s.CurrentFaction))
		turnEvents, err := handleEndTurn(s, defs)
		if err != nil {
			return nil, err
		}
		return append(events, turnEvents...), nil
	}

	for i, phase := range PhaseOrder {
		if phase == s.Phase && i+1 < len(PhaseOrder) {
			s.Phase = PhaseOrder[i+1]
			break
		}
	}
	events = append(events, phaseChangedEvent(oldPhase, s.Phase, s.CurrentFaction))
	return events, nil
}

func resetUnitStatsForFaction(s *GameState, factionID string) {
	for _, territory := range s.Territories {
		if territory.Owner != factionID {
			continue
		}
		for _, u := range territory.Units {
			u.RemainingMovement = u.BaseMovement
			u.RemainingHealth = u.BaseHealth
		}
	}
}

type victoryResult struct {
	winner     string
	counts     map[string]int
	controlled []string
}

// checkVictory counts strongholds per alliance and returns the first
// alliance, in sorted alliance-id order, meeting its threshold.
func checkVictory(s *GameState, defs *Definitions) *victoryResult {
	counts := map[string]int{}
	controlled := map[string][]string{}

	for _, territoryID := range s.SortedTerritoryIDs() {
		td := defs.Territories[territoryID]
		if td == nil || !td.IsStronghold {
			continue
		}
		owner := s.Territories[territoryID].Owner
		if owner == "" {
			continue
		}
		fd := defs.Factions[owner]
		if fd == nil {
			continue
		}
		counts[fd.Alliance]++
		controlled[fd.Alliance] = append(controlled[fd.Alliance], territoryID)
	}

	alliances := make([]string, 0, len(counts))
	for a := range counts {
		alliances = append(alliances, a)
	}
	sort.Strings(alliances)
	for _, alliance := range alliances {
		required := s.VictoryCriteria.Strongholds[alliance]
		if required > 0 && counts[alliance] >= required {
			return &victoryResult{winner: alliance, counts: counts, controlled: controlled[alliance]}
		}
	}
	return nil
}

func handleEndTurn(s *GameState, defs *Definitions) ([]GameEvent, *Error) {
	var events []GameEvent
	oldFaction := s.CurrentFaction

	// Unspent purchases are lost.
	s.FactionPurchasedUnits[oldFaction] = nil

	if FactionOwnsCapital(s, oldFaction, defs) {
		pendingIncome := map[string]int{}
		var contributing []string
		for _, territoryID := range s.SortedTerritoryIDs() {
			ts := s.Territories[territoryID]
			if ts.Owner != oldFaction {
				continue
			}
			td := defs.Territories[territoryID]
			if td == nil {
				continue
			}
			for resource, amount := range td.Produces {
				pendingIncome[resource] += amount
			}
			if len(td.Produces) > 0 {
				contributing = append(contributing, territoryID)
			}
		}
		s.FactionPendingIncome[oldFaction] = pendingIncome
		if len(pendingIncome) > 0 {
			events = append(events, incomeCalculatedEvent(oldFaction, pendingIncome, contributing))
		}
	} else {
		s.FactionPendingIncome[oldFaction] = map[string]int{}
	}

	events = append(events, turnEndedEvent(s.TurnNumber, oldFaction))

	factionIDs := defs.SortedFactionIDs()
	currentIdx := 0
	for i, fid := range factionIDs {
		if fid == s.CurrentFaction {
			currentIdx = i
			break
		}
	}
	nextIdx := (currentIdx + 1) % len(factionIDs)
	s.CurrentFaction = factionIDs[nextIdx]
	s.Phase = PhasePurchase

	if nextIdx == 0 {
		if vr := checkVictory(s, defs); vr != nil {
			s.Winner = vr.winner
			events = append(events, victoryEvent(vr.winner, vr.counts, s.VictoryCriteria.Strongholds[vr.winner], vr.controlled))
		} else {
			s.TurnNumber++
		}
	}

	newFaction := s.CurrentFaction
	if income := s.FactionPendingIncome[newFaction]; len(income) > 0 {
		if s.FactionResources[newFaction] == nil {
			s.FactionResources[newFaction] = map[string]int{}
		}
		newTotals := map[string]int{}
		resources := make([]string, 0, len(income))
		for r := range income {
			resources = append(resources, r)
		}
		sort.Strings(resources)
		for _, resource := range resources {
			s.FactionResources[newFaction][resource] += income[resource]
			newTotals[resource] = s.FactionResources[newFaction][resource]
		}
		events = append(events, incomeCollectedEvent(newFaction, income, newTotals))
	}
	s.FactionPendingIncome[newFaction] = map[string]int{}

	var owned []string
	for _, tid := range s.SortedTerritoryIDs() {
		if s.Territories[tid].Owner == newFaction {
			owned = append(owned, tid)
		}
	}
	s.FactionTerritoriesAtTurnStart[newFaction] = owned
	s.PendingCamps = nil

	var mobilization []string
	for _, tid := range owned {
		if TerritoryHasStandingCamp(s, tid, defs.Camps) {
			mobilization = append(mobilization, tid)
		}
	}
	s.MobilizationCamps = mobilization

	events = append(events, turnStartedEvent(s.TurnNumber, s.CurrentFaction))
	return events, nil
}
