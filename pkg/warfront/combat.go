package warfront

import "sort"

// DefaultTerrainBonuses maps terrain types to the bonus a unit with a
// matching tag gets on whichever stat it rolls this round.
var DefaultTerrainBonuses = map[string]int{
	"forest":   1,
	"mountain": 1,
	"city":     1,
}

const (
	antiCavalryBonus = 1
	captainBonus     = 1
	captainMaxAllies = 3
)

// RoundResult is the outcome of resolving a single combat round (or the
// archer pre-fire step).
type RoundResult struct {
	AttackerHits         int
	DefenderHits         int
	AttackerCasualties   []string
	DefenderCasualties   []string
	AttackerWounded      []string
	DefenderWounded      []string
	SurvivingAttackerIDs []string
	SurvivingDefenderIDs []string
	AttackersEliminated  bool
	DefendersEliminated  bool
}

// ComputeTerrainStatModifiers returns per-instance modifiers for units
// whose definition carries a tag matching the territory's terrain type.
// The bonus applies to attack for attackers and defense for defenders.
func ComputeTerrainStatModifiers(
	territoryDef *TerritoryDefinition,
	attackers, defenders []*Unit,
	unitDefs map[string]*UnitDefinition,
) (map[string]int, map[string]int) {
	attackerMods := map[string]int{}
	defenderMods := map[string]int{}
	if territoryDef == nil {
		return attackerMods, defenderMods
	}
	bonus, ok := DefaultTerrainBonuses[territoryDef.TerrainType]
	if !ok || bonus == 0 {
		return attackerMods, defenderMods
	}
	apply := func(units []*Unit, mods map[string]int) {
		for _, u := range units {
			ud := unitDefs[u.UnitID]
			if ud != nil && ud.HasTag(territoryDef.TerrainType) {
				mods[u.InstanceID] = bonus
			}
		}
	}
	apply(attackers, attackerMods)
	apply(defenders, defenderMods)
	return attackerMods, defenderMods
}

// ComputeAntiCavalryStatModifiers grants +1 to units tagged anti_cavalry
// when the opposing side currently has at least one cavalry unit.
// Recomputed every round so the bonus goes away when the cavalry die.
func ComputeAntiCavalryStatModifiers(
	attackers, defenders []*Unit,
	unitDefs map[string]*UnitDefinition,
) (map[string]int, map[string]int) {
	hasCavalry := func(units []*Unit) bool {
		for _, u := range units {
			ud := unitDefs[u.UnitID]
			if ud != nil && ud.Archetype == ArchetypeCavalry {
				return true
			}
		}
		return false
	}
	apply := func(units []*Unit, opposingCavalry bool) map[string]int {
		mods := map[string]int{}
		if !opposingCavalry {
			return mods
		}
		for _, u := range units {
			ud := unitDefs[u.UnitID]
			if ud != nil && ud.HasTag("anti_cavalry") {
				mods[u.InstanceID] = antiCavalryBonus
			}
		}
		return mods
	}
	return apply(attackers, hasCavalry(defenders)), apply(defenders, hasCavalry(attackers))
}

// ComputeCaptainStatModifiers grants +1 to up to three same-archetype
// non-captain allies per captain. A given ally is boosted at most once no
// matter how many captains are present.
func ComputeCaptainStatModifiers(
	attackers, defenders []*Unit,
	unitDefs map[string]*UnitDefinition,
) (map[string]int, map[string]int) {
	apply := func(units []*Unit) map[string]int {
		mods := map[string]int{}
		boosted := map[string]bool{}
		for _, captain := range units {
			cd := unitDefs[captain.UnitID]
			if cd == nil || !cd.HasTag("captain") {
				continue
			}
			count := 0
			for _, ally := range units {
				if count >= captainMaxAllies {
					break
				}
				if ally.InstanceID == captain.InstanceID || boosted[ally.InstanceID] {
					continue
				}
				ad := unitDefs[ally.UnitID]
				if ad == nil || ad.HasTag("captain") {
					continue
				}
				if ad.Archetype == cd.Archetype {
					mods[ally.InstanceID] = captainBonus
					boosted[ally.InstanceID] = true
					count++
				}
			}
		}
		return mods
	}
	return apply(attackers), apply(defenders)
}

// MergeStatModifiers sums modifier maps per instance id.
func MergeStatModifiers(mods ...map[string]int) map[string]int {
	out := map[string]int{}
	for _, m := range mods {
		for iid, v := range m {
			out[iid] += v
		}
	}
	return out
}

// ResolveCombatRound resolves one simultaneous round. Both unit slices are
// modified in place: dead units are removed, survivors keep decremented
// health. Callers pass copies when the originals must be preserved.
func ResolveCombatRound(
	attackers, defenders *[]*Unit,
	unitDefs map[string]*UnitDefinition,
	rolls DiceRolls,
	attackerMods, defenderMods map[string]int,
) RoundResult {
	attackerHits := countHits(*attackers, rolls.Attacker, unitDefs, true, attackerMods)
	defenderHits := countHits(*defenders, rolls.Defender, unitDefs, false, defenderMods)

	// Both sides' hit counts are computed before either side loses a unit.
	attackerCasualties, attackerWounded := applyHits(attackers, defenderHits, unitDefs, true)
	defenderCasualties, defenderWounded := applyHits(defenders, attackerHits, unitDefs, false)

	return RoundResult{
		AttackerHits:         attackerHits,
		DefenderHits:         defenderHits,
		AttackerCasualties:   attackerCasualties,
		DefenderCasualties:   defenderCasualties,
		AttackerWounded:      attackerWounded,
		DefenderWounded:      defenderWounded,
		SurvivingAttackerIDs: instanceIDs(*attackers),
		SurvivingDefenderIDs: instanceIDs(*defenders),
		AttackersEliminated:  len(*attackers) == 0,
		DefendersEliminated:  len(*defenders) == 0,
	}
}

// ResolveArcherPrefire runs the defender-archer pre-fire step: only the
// archers roll, at defense-1 merged with any extra modifiers, and hits
// apply to attackers only. The attacker slice is modified in place; the
// archer slice is untouched.
func ResolveArcherPrefire(
	attackers *[]*Unit,
	defenderArchers []*Unit,
	unitDefs map[string]*UnitDefinition,
	defenderRolls []int,
	defenderExtraMods map[string]int,
) RoundResult {
	mods := map[string]int{}
	for _, u := range defenderArchers {
		mods[u.InstanceID] = -1 + defenderExtraMods[u.InstanceID]
	}
	defenderHits := countHits(defenderArchers, defenderRolls, unitDefs, false, mods)
	attackerCasualties, attackerWounded := applyHits(attackers, defenderHits, unitDefs, true)

	return RoundResult{
		AttackerHits:         0,
		DefenderHits:         defenderHits,
		AttackerCasualties:   attackerCasualties,
		AttackerWounded:      attackerWounded,
		SurvivingAttackerIDs: instanceIDs(*attackers),
		SurvivingDefenderIDs: instanceIDs(defenderArchers),
		AttackersEliminated:  len(*attackers) == 0,
		DefendersEliminated:  false,
	}
}

// countHits walks units in list order, consuming `dice` rolls per unit and
// counting a hit for each roll <= stat + modifier. Excess rolls are
// ignored; when rolls run out, counting stops.
func countHits(units []*Unit, rolls []int, unitDefs map[string]*UnitDefinition, isAttacker bool, mods map[string]int) int {
	hits := 0
	rollIdx := 0
	for _, u := range units {
		ud := unitDefs[u.UnitID]
		if ud == nil {
			continue
		}
		stat := ud.Defense
		if isAttacker {
			stat = ud.Attack
		}
		stat += mods[u.InstanceID]
		for d := 0; d < ud.Dice; d++ {
			if rollIdx >= len(rolls) {
				return hits
			}
			if rolls[rollIdx] <= stat {
				hits++
			}
			rollIdx++
		}
	}
	return hits
}

// applyHits distributes hits one at a time, re-sorting the target list
// before each hit by (remaining_health desc, total cost asc, stat asc,
// remaining_movement asc). The re-sort after every hit lets multi-HP units
// soak a point then step aside for equal-HP cheaper units. Dead units are
// removed from the slice. Returns (destroyed, wounded) instance ids.
func applyHits(units *[]*Unit, hits int, unitDefs map[string]*UnitDefinition, isAttacker bool) ([]string, []string) {
	destroyed := []string{}
	wounded := map[string]bool{}

	sortKey := func(u *Unit) (int, int, int, int) {
		ud := unitDefs[u.UnitID]
		if ud == nil {
			return 1, int(^uint(0) >> 1), int(^uint(0) >> 1), int(^uint(0) >> 1)
		}
		totalCost := 0
		for _, c := range ud.Cost {
			totalCost += c
		}
		stat := ud.Defense
		if isAttacker {
			stat = ud.Attack
		}
		return -u.RemainingHealth, totalCost, stat, u.RemainingMovement
	}

	for hits > 0 && len(*units) > 0 {
		sort.SliceStable(*units, func(i, j int) bool {
			a1, a2, a3, a4 := sortKey((*units)[i])
			b1, b2, b3, b4 := sortKey((*units)[j])
			if a1 != b1 {
				return a1 < b1
			}
			if a2 != b2 {
				return a2 < b2
			}
			if a3 != b3 {
				return a3 < b3
			}
			return a4 < b4
		})
		target := (*units)[0]
		target.RemainingHealth--
		hits--
		if target.RemainingHealth == 0 {
			destroyed = append(destroyed, target.InstanceID)
			delete(wounded, target.InstanceID)
			*units = (*units)[1:]
		} else {
			wounded[target.InstanceID] = true
		}
	}

	woundedIDs := make([]string, 0, len(wounded))
	for iid := range wounded {
		woundedIDs = append(woundedIDs, iid)
	}
	sort.Strings(woundedIDs)
	return destroyed, woundedIDs
}

// CalculateRequiredDice returns the number of rolls a unit list consumes.
func CalculateRequiredDice(units []*Unit, unitDefs map[string]*UnitDefinition) int {
	total := 0
	for _, u := range units {
		if ud := unitDefs[u.UnitID]; ud != nil {
			total += ud.Dice
		} else {
			total++
		}
	}
	return total
}

// DiceGroup is one stat bucket in a grouped-dice breakdown.
type DiceGroup struct {
	Rolls []int `json:"rolls"`
	Hits  int   `json:"hits"`
}

// GroupDiceByStat distributes rolls across the effective stat values of the
// rolling side, for UI display. Buckets are filled in ascending stat order
// for deterministic assignment.
func GroupDiceByStat(units []*Unit, rolls []int, unitDefs map[string]*UnitDefinition, isAttacker bool, mods map[string]int) map[int]DiceGroup {
	dicePerStat := map[int]int{}
	for _, u := range units {
		ud := unitDefs[u.UnitID]
		if ud == nil {
			continue
		}
		stat := ud.Defense
		if isAttacker {
			stat = ud.Attack
		}
		stat += mods[u.InstanceID]
		dicePerStat[stat] += ud.Dice
	}

	stats := make([]int, 0, len(dicePerStat))
	for s := range dicePerStat {
		stats = append(stats, s)
	}
	sort.Ints(stats)

	result := map[int]DiceGroup{}
	rollIdx := 0
	for _, stat := range stats {
		group := DiceGroup{Rolls: []int{}}
		for d := 0; d < dicePerStat[stat]; d++ {
			if rollIdx >= len(rolls) {
				break
			}
			roll := rolls[rollIdx]
			group.Rolls = append(group.Rolls, roll)
			if roll <= stat {
				group.Hits++
			}
			rollIdx++
		}
		result[stat] = group
	}
	return result
}

func instanceIDs(units []*Unit) []string {
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.InstanceID)
	}
	return ids
}
