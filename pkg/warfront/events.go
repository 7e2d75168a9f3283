package warfront

// Event types emitted by the reducer, in causal order within one call.
const (
	EventPhaseChanged        = "phase_changed"
	EventTurnStarted         = "turn_started"
	EventTurnEnded           = "turn_ended"
	EventResourcesChanged    = "resources_changed"
	EventUnitsPurchased      = "units_purchased"
	EventIncomeCalculated    = "income_calculated"
	EventIncomeCollected     = "income_collected"
	EventUnitsMoved          = "units_moved"
	EventMoveCancelled       = "move_cancelled"
	EventCombatStarted       = "combat_started"
	EventCombatRoundResolved = "combat_round_resolved"
	EventCombatEnded         = "combat_ended"
	EventUnitsRetreated      = "units_retreated"
	EventTerritoryCaptured   = "territory_captured"
	EventUnitDestroyed       = "unit_destroyed"
	EventUnitsMobilized      = "units_mobilized"
	EventVictory             = "victory"
)

// GameEvent is the wire record of one thing that happened inside a reducer
// call. The payload keys are fixed per type by the factory below.
type GameEvent struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func phaseChangedEvent(oldPhase, newPhase, faction string) GameEvent {
	return GameEvent{Type: EventPhaseChanged, Payload: map[string]any{
		"old_phase": oldPhase,
		"new_phase": newPhase,
		"faction":   faction,
	}}
}

func turnStartedEvent(turnNumber int, faction string) GameEvent {
	return GameEvent{Type: EventTurnStarted, Payload: map[string]any{
		"turn_number": turnNumber,
		"faction":     faction,
	}}
}

func turnEndedEvent(turnNumber int, faction string) GameEvent {
	return GameEvent{Type: EventTurnEnded, Payload: map[string]any{
		"turn_number": turnNumber,
		"faction":     faction,
	}}
}

func resourcesChangedEvent(faction, resource string, oldValue, newValue int, reason string) GameEvent {
	return GameEvent{Type: EventResourcesChanged, Payload: map[string]any{
		"faction":   faction,
		"resource":  resource,
		"old_value": oldValue,
		"new_value": newValue,
		"reason":    reason,
	}}
}

func unitsPurchasedEvent(faction string, purchases map[string]int, totalCost map[string]int) GameEvent {
	return GameEvent{Type: EventUnitsPurchased, Payload: map[string]any{
		"faction":    faction,
		"purchases":  purchases,
		"total_cost": totalCost,
	}}
}

func incomeCalculatedEvent(faction string, income map[string]int, territories []string) GameEvent {
	return GameEvent{Type: EventIncomeCalculated, Payload: map[string]any{
		"faction":                  faction,
		"income":                   income,
		"contributing_territories": territories,
	}}
}

func incomeCollectedEvent(faction string, income map[string]int, newTotals map[string]int) GameEvent {
	return GameEvent{Type: EventIncomeCollected, Payload: map[string]any{
		"faction":    faction,
		"income":     income,
		"new_totals": newTotals,
	}}
}

func unitsMovedEvent(faction, from, to string, unitInstanceIDs []string, phase string) GameEvent {
	return GameEvent{Type: EventUnitsMoved, Payload: map[string]any{
		"faction":           faction,
		"from_territory":    from,
		"to_territory":      to,
		"unit_instance_ids": unitInstanceIDs,
		"phase":             phase,
		"declared":          true,
	}}
}

func moveCancelledEvent(pm PendingMove) GameEvent {
	return GameEvent{Type: EventMoveCancelled, Payload: map[string]any{
		"from_territory":    pm.FromTerritory,
		"to_territory":      pm.ToTerritory,
		"unit_instance_ids": pm.UnitInstanceIDs,
	}}
}

func combatStartedEvent(territoryID, attackerFaction string, attackerIDs []string, defenderFaction string, defenderIDs []string) GameEvent {
	return GameEvent{Type: EventCombatStarted, Payload: map[string]any{
		"territory_id":          territoryID,
		"attacker_faction":      attackerFaction,
		"attacker_instance_ids": attackerIDs,
		"defender_faction":      defenderFaction,
		"defender_instance_ids": defenderIDs,
	}}
}

// combatRoundResolvedEvent carries the full per-round breakdown the UI
// renders: grouped dice per effective stat, casualties, wounded, and hit
// totals per unit type (a casualty contributes base_health, a wounded
// survivor contributes 1).
func combatRoundResolvedEvent(
	territoryID string,
	roundNumber int,
	attackerDice, defenderDice map[int]DiceGroup,
	result RoundResult,
	attackerHitsByType, defenderHitsByType map[string]int,
	isArcherPrefire bool,
) GameEvent {
	payload := map[string]any{
		"territory_id":        territoryID,
		"round_number":        roundNumber,
		"attacker_dice":       attackerDice,
		"defender_dice":       defenderDice,
		"attacker_hits":       result.AttackerHits,
		"defender_hits":       result.DefenderHits,
		"attacker_casualties": result.AttackerCasualties,
		"defender_casualties": result.DefenderCasualties,
		"attacker_wounded":    result.AttackerWounded,
		"defender_wounded":    result.DefenderWounded,
		"attackers_remaining": len(result.SurvivingAttackerIDs),
		"defenders_remaining": len(result.SurvivingDefenderIDs),
	}
	if attackerHitsByType != nil {
		payload["attacker_hits_by_unit_type"] = attackerHitsByType
	}
	if defenderHitsByType != nil {
		payload["defender_hits_by_unit_type"] = defenderHitsByType
	}
	if isArcherPrefire {
		payload["is_archer_prefire"] = true
	}
	return GameEvent{Type: EventCombatRoundResolved, Payload: payload}
}

func combatEndedEvent(territoryID, winner, attackerFaction, defenderFaction string, survivingAttackers, survivingDefenders []string, totalRounds int) GameEvent {
	return GameEvent{Type: EventCombatEnded, Payload: map[string]any{
		"territory_id":        territoryID,
		"winner":              winner,
		"attacker_faction":    attackerFaction,
		"defender_faction":    defenderFaction,
		"surviving_attackers": survivingAttackers,
		"surviving_defenders": survivingDefenders,
		"total_rounds":        totalRounds,
	}}
}

func unitsRetreatedEvent(faction, from, to string, unitInstanceIDs []string) GameEvent {
	return GameEvent{Type: EventUnitsRetreated, Payload: map[string]any{
		"faction":           faction,
		"from_territory":    from,
		"to_territory":      to,
		"unit_instance_ids": unitInstanceIDs,
	}}
}

func territoryCapturedEvent(territoryID, oldOwner, newOwner string, survivingUnitIDs []string) GameEvent {
	return GameEvent{Type: EventTerritoryCaptured, Payload: map[string]any{
		"territory_id":       territoryID,
		"old_owner":          oldOwner,
		"new_owner":          newOwner,
		"surviving_unit_ids": survivingUnitIDs,
	}}
}

func unitDestroyedEvent(instanceID, unitType, faction, territoryID, cause string) GameEvent {
	return GameEvent{Type: EventUnitDestroyed, Payload: map[string]any{
		"instance_id":  instanceID,
		"unit_type":    unitType,
		"faction":      faction,
		"territory_id": territoryID,
		"cause":        cause,
	}}
}

func unitsMobilizedEvent(faction, destination string, mobilized []map[string]string) GameEvent {
	return GameEvent{Type: EventUnitsMobilized, Payload: map[string]any{
		"faction":     faction,
		"destination": destination,
		"units":       mobilized,
	}}
}

func victoryEvent(winner string, counts map[string]int, required int, controlled []string) GameEvent {
	return GameEvent{Type: EventVictory, Payload: map[string]any{
		"winner":                 winner,
		"stronghold_counts":      counts,
		"strongholds_required":   required,
		"controlled_strongholds": controlled,
	}}
}
