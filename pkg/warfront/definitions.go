package warfront

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// Archetypes drive movement and combat special cases. "other" covers
// anything not listed here.
const (
	ArchetypeArcher   = "archer"
	ArchetypeCavalry  = "cavalry"
	ArchetypeAerial   = "aerial"
	ArchetypeInfantry = "infantry"
)

// UnitDefinition is an immutable unit type. A game snapshots the bundle it
// was created with, so later edits to the source bundle never affect
// in-flight games.
type UnitDefinition struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Faction     string         `json:"faction"`
	Archetype   string         `json:"archetype"`
	Tags        []string       `json:"tags"`
	Attack      int            `json:"attack"`
	Defense     int            `json:"defense"`
	Movement    int            `json:"movement"`
	Health      int            `json:"health"`
	Cost        map[string]int `json:"cost"`
	Dice        int            `json:"dice"`
	Purchasable bool           `json:"purchasable"`
	Unique      bool           `json:"unique"`
	Icon        string         `json:"icon,omitempty"`
}

// HasTag reports whether the unit definition carries the given tag.
func (u *UnitDefinition) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TerritoryDefinition is an immutable territory. Ownable=false forbids
// ownership changes and camp placement (wastelands/neutral ground).
type TerritoryDefinition struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	TerrainType  string         `json:"terrain_type"`
	Adjacent     []string       `json:"adjacent"`
	Produces     map[string]int `json:"produces"`
	IsStronghold bool           `json:"is_stronghold"`
	Ownable      bool           `json:"ownable"`
}

// FactionDefinition is an immutable faction.
type FactionDefinition struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Alliance    string `json:"alliance"`
	Capital     string `json:"capital"`
	Color       string `json:"color"`
	Icon        string `json:"icon,omitempty"`
}

// CampDefinition is an immutable, setup-defined mobilization point.
// Destroyed when its territory is captured or liberated.
type CampDefinition struct {
	ID          string `json:"id"`
	TerritoryID string `json:"territory_id"`
}

// VictoryCriteria maps an alliance id to the stronghold count it must
// control to win.
type VictoryCriteria struct {
	Strongholds map[string]int `json:"strongholds"`
}

// DefaultVictoryCriteria is the fallback when a setup's manifest does not
// pin its own: four strongholds each for a two-alliance map.
func DefaultVictoryCriteria() VictoryCriteria {
	return VictoryCriteria{Strongholds: map[string]int{"good": 4, "evil": 4}}
}

// Definitions is a full rule-data snapshot: every definition a game needs,
// plus the manifest-level defaults (victory criteria, camp cost, map
// asset). Read-only after load; safe to share across games.
type Definitions struct {
	Units       map[string]*UnitDefinition
	Territories map[string]*TerritoryDefinition
	Factions    map[string]*FactionDefinition
	Camps       map[string]*CampDefinition

	VictoryCriteria VictoryCriteria
	CampCost        int
	MapAsset        string
	DisplayName     string
	StartingSetup   *StartingSetup
}

// StartingSetup describes initial territory ownership and starting unit
// placements, as read from starting_setup.json.
type StartingSetup struct {
	TurnOrder       []string                    `json:"turn_order"`
	TerritoryOwners map[string]string           `json:"territory_owners"`
	StartingUnits   map[string][]UnitStackInput `json:"starting_units"`
}

// UnitStackInput is a {unit_id, count} pair as read from JSON bundles.
type UnitStackInput struct {
	UnitID string `json:"unit_id"`
	Count  int    `json:"count"`
}

type manifestFile struct {
	ID              string           `json:"id"`
	DisplayName     string           `json:"display_name"`
	MapAsset        string           `json:"map_asset"`
	VictoryCriteria *VictoryCriteria `json:"victory_criteria"`
	CampCost        *int             `json:"camp_cost"`
}

// SetupInfo is the scanned-directory summary returned by ListSetups.
type SetupInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	MapAsset    string `json:"map_asset"`
}

// ListSetups scans setupsDir for subdirectories containing
// starting_setup.json, returning one SetupInfo per valid setup, sorted by
// directory name.
func ListSetups(setupsDir string) ([]SetupInfo, error) {
	entries, err := os.ReadDir(setupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newErr(ErrSetupMalformed, "reading setups dir: %v", err)
	}
	var out []SetupInfo
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		dir := filepath.Join(setupsDir, name)
		if _, err := os.Stat(filepath.Join(dir, "starting_setup.json")); err != nil {
			continue
		}
		info := SetupInfo{ID: name, DisplayName: name, MapAsset: name}
		if m, err := readManifest(dir); err == nil && m != nil {
			if m.ID != "" {
				info.ID = m.ID
			}
			if m.DisplayName != "" {
				info.DisplayName = m.DisplayName
			}
			if m.MapAsset != "" {
				info.MapAsset = m.MapAsset
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func readManifest(dir string) (*manifestFile, error) {
	path := filepath.Join(dir, "manifest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadSetup reads a setup bundle directory into a full Definitions
// snapshot. Missing optional fields use documented defaults: dice=1,
// tags=[], ownable=true, is_stronghold=false, purchasable=true.
func LoadSetup(dir string) (*Definitions, error) {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, newErr(ErrSetupNotFound, "setup not found: %s", dir)
	}

	defs := &Definitions{
		Units:           map[string]*UnitDefinition{},
		Territories:     map[string]*TerritoryDefinition{},
		Factions:        map[string]*FactionDefinition{},
		Camps:           map[string]*CampDefinition{},
		VictoryCriteria: DefaultVictoryCriteria(),
		CampCost:        0,
		DisplayName:     filepath.Base(dir),
		MapAsset:        filepath.Base(dir),
	}

	if err := loadUnits(dir, defs); err != nil {
		return nil, err
	}
	if err := loadTerritories(dir, defs); err != nil {
		return nil, err
	}
	if err := loadFactions(dir, defs); err != nil {
		return nil, err
	}
	if err := loadCamps(dir, defs); err != nil {
		return nil, err
	}

	startingPath := filepath.Join(dir, "starting_setup.json")
	startingData, err := os.ReadFile(startingPath)
	if err != nil {
		return nil, newErr(ErrSetupMalformed, "starting_setup.json not found in setup: %s", dir)
	}
	var starting StartingSetup
	if err := json.Unmarshal(startingData, &starting); err != nil {
		return nil, newErr(ErrSetupMalformed, "malformed starting_setup.json: %v", err)
	}
	defs.StartingSetup = &starting

	if m, err := readManifest(dir); err == nil && m != nil {
		if m.ID != "" {
			defs.DisplayName = m.ID
		}
		if m.DisplayName != "" {
			defs.DisplayName = m.DisplayName
		}
		if m.MapAsset != "" {
			defs.MapAsset = m.MapAsset
		}
		if m.VictoryCriteria != nil && len(m.VictoryCriteria.Strongholds) > 0 {
			defs.VictoryCriteria = *m.VictoryCriteria
		}
		if m.CampCost != nil {
			defs.CampCost = *m.CampCost
		}
	}

	return defs, nil
}

type unitJSON struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Faction     string         `json:"faction"`
	Archetype   string         `json:"archetype"`
	Tags        []string       `json:"tags"`
	Attack      int            `json:"attack"`
	Defense     int            `json:"defense"`
	Movement    int            `json:"movement"`
	Health      int            `json:"health"`
	Cost        map[string]int `json:"cost"`
	Dice        *int           `json:"dice"`
	Purchasable *bool          `json:"purchasable"`
	Unique      *bool          `json:"unique"`
	Icon        string         `json:"icon"`
}

func loadUnits(dir string, defs *Definitions) error {
	data, err := os.ReadFile(filepath.Join(dir, "units.json"))
	if err != nil {
		return newErr(ErrSetupMalformed, "units.json: %v", err)
	}
	var raw map[string]unitJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return newErr(ErrSetupMalformed, "malformed units.json: %v", err)
	}
	for id, u := range raw {
		dice := 1
		if u.Dice != nil {
			dice = *u.Dice
		}
		purchasable := true
		if u.Purchasable != nil {
			purchasable = *u.Purchasable
		}
		unique := false
		if u.Unique != nil {
			unique = *u.Unique
		}
		defs.Units[id] = &UnitDefinition{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Faction:     u.Faction,
			Archetype:   u.Archetype,
			Tags:        u.Tags,
			Attack:      u.Attack,
			Defense:     u.Defense,
			Movement:    u.Movement,
			Health:      u.Health,
			Cost:        u.Cost,
			Dice:        dice,
			Purchasable: purchasable,
			Unique:      unique,
			Icon:        u.Icon,
		}
	}
	return nil
}

type territoryJSON struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	TerrainType  string         `json:"terrain_type"`
	Adjacent     []string       `json:"adjacent"`
	Produces     map[string]int `json:"produces"`
	IsStronghold *bool          `json:"is_stronghold"`
	Ownable      *bool          `json:"ownable"`
}

func loadTerritories(dir string, defs *Definitions) error {
	data, err := os.ReadFile(filepath.Join(dir, "territories.json"))
	if err != nil {
		return newErr(ErrSetupMalformed, "territories.json: %v", err)
	}
	var raw map[string]territoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return newErr(ErrSetupMalformed, "malformed territories.json: %v", err)
	}
	for id, t := range raw {
		stronghold := false
		if t.IsStronghold != nil {
			stronghold = *t.IsStronghold
		}
		ownable := true
		if t.Ownable != nil {
			ownable = *t.Ownable
		}
		defs.Territories[id] = &TerritoryDefinition{
			ID:           t.ID,
			DisplayName:  t.DisplayName,
			TerrainType:  t.TerrainType,
			Adjacent:     t.Adjacent,
			Produces:     t.Produces,
			IsStronghold: stronghold,
			Ownable:      ownable,
		}
	}
	return nil
}

func loadFactions(dir string, defs *Definitions) error {
	data, err := os.ReadFile(filepath.Join(dir, "factions.json"))
	if err != nil {
		return newErr(ErrSetupMalformed, "factions.json: %v", err)
	}
	var raw map[string]FactionDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return newErr(ErrSetupMalformed, "malformed factions.json: %v", err)
	}
	for id, f := range raw {
		fCopy := f
		defs.Factions[id] = &fCopy
	}
	return nil
}

func loadCamps(dir string, defs *Definitions) error {
	path := filepath.Join(dir, "camps.json")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return newErr(ErrSetupMalformed, "camps.json: %v", err)
	}
	var raw map[string]CampDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return newErr(ErrSetupMalformed, "malformed camps.json: %v", err)
	}
	for id, c := range raw {
		cCopy := c
		defs.Camps[id] = &cCopy
	}
	return nil
}

// Snapshot serializes the full definitions bundle. A game stores this at
// creation so later edits to the setup directory never affect it.
func (d *Definitions) Snapshot() ([]byte, error) {
	return json.Marshal(d)
}

// DefinitionsFromSnapshot restores a bundle stored by Snapshot.
func DefinitionsFromSnapshot(data []byte) (*Definitions, error) {
	var d Definitions
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, newErr(ErrSetupMalformed, "malformed definitions snapshot: %v", err)
	}
	if d.Units == nil {
		d.Units = map[string]*UnitDefinition{}
	}
	if d.Territories == nil {
		d.Territories = map[string]*TerritoryDefinition{}
	}
	if d.Factions == nil {
		d.Factions = map[string]*FactionDefinition{}
	}
	if d.Camps == nil {
		d.Camps = map[string]*CampDefinition{}
	}
	return &d, nil
}

// SortedFactionIDs returns faction ids in sorted order — the canonical
// turn order and the deterministic victory tie-break order.
func (d *Definitions) SortedFactionIDs() []string {
	ids := make([]string, 0, len(d.Factions))
	for id := range d.Factions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
