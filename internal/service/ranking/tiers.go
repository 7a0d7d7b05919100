// Package ranking owns user XP, rank tiers and the XP transaction ledger.
package ranking

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTierTable is returned when a tier table is empty or not strictly ordered.
var ErrInvalidTierTable = errors.New("invalid rank tier table")

// Tier is one named rank bracket.
type Tier struct {
	Name   string `json:"tier" yaml:"name"`
	Number int    `json:"tier_number" yaml:"number"`
	MinXP  int    `json:"min_xp" yaml:"min_xp"`
	MaxXP  *int   `json:"max_xp" yaml:"-"` // nil for the top tier
}

// DefaultTiers is the built-in 16-tier ladder. Tier 16 is the cap.
var DefaultTiers = []Tier{
	{Name: "Bronze III", Number: 1, MinXP: 0},
	{Name: "Bronze II", Number: 2, MinXP: 200},
	{Name: "Bronze I", Number: 3, MinXP: 400},
	{Name: "Silver III", Number: 4, MinXP: 600},
	{Name: "Silver II", Number: 5, MinXP: 800},
	{Name: "Silver I", Number: 6, MinXP: 1000},
	{Name: "Gold III", Number: 7, MinXP: 1200},
	{Name: "Gold II", Number: 8, MinXP: 1400},
	{Name: "Gold I", Number: 9, MinXP: 1600},
	{Name: "Platinum III", Number: 10, MinXP: 1800},
	{Name: "Platinum II", Number: 11, MinXP: 2000},
	{Name: "Platinum I", Number: 12, MinXP: 2200},
	{Name: "Diamond III", Number: 13, MinXP: 2400},
	{Name: "Diamond II", Number: 14, MinXP: 2600},
	{Name: "Diamond I", Number: 15, MinXP: 2800},
	{Name: "Champion", Number: 16, MinXP: 3000},
}

// TierTable maps XP to tiers. It is immutable once built.
type TierTable struct {
	tiers  []Tier
	byName map[string]int
}

// NewTierTable validates tiers and derives each tier's MaxXP. Tiers must be
// listed lowest first with strictly increasing numbers and thresholds.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrInvalidTierTable)
	}

	t := &TierTable{
		tiers:  make([]Tier, len(tiers)),
		byName: make(map[string]int, len(tiers)),
	}
	copy(t.tiers, tiers)

	for i := range t.tiers {
		tier := &t.tiers[i]
		if tier.Name == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidTierTable, i)
		}
		if _, dup := t.byName[tier.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %q", ErrInvalidTierTable, tier.Name)
		}
		if i > 0 {
			prev := t.tiers[i-1]
			if tier.Number <= prev.Number || tier.MinXP <= prev.MinXP {
				return nil, fmt.Errorf("%w: tier %q is not above %q", ErrInvalidTierTable, tier.Name, prev.Name)
			}
			maxXP := tier.MinXP - 1
			t.tiers[i-1].MaxXP = &maxXP
		}
		tier.MaxXP = nil
		t.byName[tier.Name] = i
	}

	return t, nil
}

// MustDefaultTierTable returns the built-in table.
func MustDefaultTierTable() *TierTable {
	t, err := NewTierTable(DefaultTiers)
	if err != nil {
		panic(err)
	}
	return t
}

type tierFile struct {
	Tiers []Tier `yaml:"tiers"`
}

// LoadTierTable reads a YAML document of the form:
//
//	tiers:
//	  - name: Bronze
//	    number: 1
//	    min_xp: 0
func LoadTierTable(r io.Reader) (*TierTable, error) {
	var f tierFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode tier table: %w", err)
	}
	return NewTierTable(f.Tiers)
}

// Lookup returns the highest tier whose threshold is at or below xp. The
// boolean is false when no threshold matched and the lowest tier was used.
func (t *TierTable) Lookup(xp int) (Tier, bool) {
	for i := len(t.tiers) - 1; i >= 0; i-- {
		if xp >= t.tiers[i].MinXP {
			return t.tiers[i], true
		}
	}
	return t.tiers[0], false
}

// ByName returns the tier with the given name.
func (t *TierTable) ByName(name string) (Tier, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Tier{}, false
	}
	return t.tiers[i], true
}

// Next returns the tier directly above tier, or false at the cap.
func (t *TierTable) Next(tier Tier) (Tier, bool) {
	i, ok := t.byName[tier.Name]
	if !ok || i+1 >= len(t.tiers) {
		return Tier{}, false
	}
	return t.tiers[i+1], true
}

// Lowest returns the entry tier.
func (t *TierTable) Lowest() Tier {
	return t.tiers[0]
}

// All returns a copy of every tier, lowest first.
func (t *TierTable) All() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}
