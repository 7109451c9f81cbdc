// Package chemical holds the catalog of pH adjusting agents, their empirical
// dosing constants, and parsing of the agent and surface identifiers used by
// API callers.
//
// All dosing constants are calibrated to a 10,000 gallon reference pool at
// 100 ppm total alkalinity and a 0.2 pH shift. They are field heuristics, not
// first-principles chemistry, and are kept here so they can be audited
// against product data sheets in one place.
package chemical

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

// Form is the physical form of an agent. It selects the safety ceiling and
// the natural display unit.
type Form string

const (
	FormLiquid   Form = "liquid"   // dosed by fluid ounce
	FormSolid    Form = "solid"    // dosed by weight ounce
	FormPhysical Form = "physical" // no product is added
)

// Display units.
const (
	UnitFluidOunce = "fl oz"
	UnitOunce      = "oz"
	UnitGallon     = "gal"
	UnitPound      = "lbs"
)

// Reference doses, in product ounces per 0.2 pH at reference conditions.
const (
	// AcidReferenceOz is the fl oz of 31.45% muriatic acid that lowers pH by
	// 0.2 in 10,000 gallons at 100 ppm alkalinity.
	AcidReferenceOz = 12.0

	// SodaAshReferenceOz is the oz of soda ash that raises pH by 0.2.
	SodaAshReferenceOz = 6.0

	// BoraxReferenceOz is the oz of borax that raises pH by 0.2. Borax is a
	// much weaker base by weight than soda ash.
	BoraxReferenceOz = 20.0
)

// Potency factors relative to an agent's reference dose.
const (
	Muriatic15Potency = 2.0 // half strength, twice the volume
	DryAcidPotency    = 1.6
)

// Alkalinity side effects in ppm per ounce of product in 10,000 gallons.
const (
	MuriaticAlkalinityPerOz = 0.5
	DryAcidAlkalinityPerOz  = 0.4
	SodaAshAlkalinityPerOz  = 0.8
	BoraxAlkalinityPerOz    = 0.1
)

var (
	ErrUnknownAcid    = errors.New("chemical: unknown acid")
	ErrUnknownBase    = errors.New("chemical: unknown base")
	ErrUnknownSurface = errors.New("chemical: unknown surface material")
	ErrUnknownAgent   = errors.New("chemical: unknown agent")
)

// Defaults applied when a caller leaves a choice empty.
const (
	DefaultAcid    = model.AcidMuriatic31
	DefaultBase    = model.BaseSodaAsh
	DefaultSurface = model.SurfacePlaster
)

// Agent describes one pH adjusting chemical or method.
type Agent struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Direction model.Direction `json:"direction"`
	Form      Form            `json:"form"`
	Unit      string          `json:"unit"`

	// ReferenceOz is the base amount per 0.2 pH step at reference conditions.
	ReferenceOz float64 `json:"reference_oz"`

	// Potency scales the reference dose for this product's strength.
	Potency float64 `json:"potency"`

	// AlkalinityPerOz is the magnitude of the total alkalinity change, in ppm,
	// caused by one ounce of product in 10,000 gallons. The sign follows
	// Direction: acids consume alkalinity, bases add it.
	AlkalinityPerOz float64 `json:"alkalinity_per_oz"`

	// Placement tells the operator where and how to introduce the product.
	Placement string `json:"placement"`
}

var catalog = []Agent{
	{
		ID:              string(model.AcidMuriatic31),
		Name:            "Muriatic Acid (31.45%)",
		Direction:       model.DirectionLower,
		Form:            FormLiquid,
		Unit:            UnitFluidOunce,
		ReferenceOz:     AcidReferenceOz,
		Potency:         1,
		AlkalinityPerOz: MuriaticAlkalinityPerOz,
		Placement:       "Pour the acid slowly in front of a return jet at the deep end, away from the skimmer and walls.",
	},
	{
		ID:          string(model.AcidMuriatic15),
		Name:        "Muriatic Acid (15%)",
		Direction:   model.DirectionLower,
		Form:        FormLiquid,
		Unit:        UnitFluidOunce,
		ReferenceOz: AcidReferenceOz,
		Potency:     Muriatic15Potency,
		// Only half of each ounce is acid at full strength.
		AlkalinityPerOz: MuriaticAlkalinityPerOz / Muriatic15Potency,
		Placement:       "Pour the acid slowly in front of a return jet at the deep end, away from the skimmer and walls.",
	},
	{
		ID:              string(model.AcidDry),
		Name:            "Dry Acid (Sodium Bisulfate)",
		Direction:       model.DirectionLower,
		Form:            FormSolid,
		Unit:            UnitOunce,
		ReferenceOz:     AcidReferenceOz,
		Potency:         DryAcidPotency,
		AlkalinityPerOz: DryAcidAlkalinityPerOz,
		Placement:       "Dissolve the dry acid completely in a bucket of pool water, then pour it in front of a return jet at the deep end.",
	},
	{
		ID:              string(model.BaseSodaAsh),
		Name:            "Soda Ash (Sodium Carbonate)",
		Direction:       model.DirectionRaise,
		Form:            FormSolid,
		Unit:            UnitOunce,
		ReferenceOz:     SodaAshReferenceOz,
		Potency:         1,
		AlkalinityPerOz: SodaAshAlkalinityPerOz,
		Placement:       "Pre-dissolve the soda ash in a bucket of water and broadcast it across the deep end.",
	},
	{
		ID:              string(model.BaseBorax),
		Name:            "Borax (Sodium Tetraborate)",
		Direction:       model.DirectionRaise,
		Form:            FormSolid,
		Unit:            UnitOunce,
		ReferenceOz:     BoraxReferenceOz,
		Potency:         1,
		AlkalinityPerOz: BoraxAlkalinityPerOz,
		Placement:       "Broadcast the borax slowly over the deep end, keeping it away from the skimmer.",
	},
	{
		ID:        string(model.BaseAeration),
		Name:      "Aeration",
		Direction: model.DirectionRaise,
		Form:      FormPhysical,
		Placement: "Point return jets upward to break the surface and run waterfalls, fountains or spa spillovers.",
	},
}

var byID = func() map[string]Agent {
	m := make(map[string]Agent, len(catalog))
	for _, a := range catalog {
		m[a.ID] = a
	}
	return m
}()

// Catalog returns every known agent, acids first.
func Catalog() []Agent {
	out := make([]Agent, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the agent with the given identifier.
func Lookup(id string) (Agent, error) {
	a, ok := byID[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	return a, nil
}

// ForAcid returns the agent for an acid choice.
func ForAcid(acid model.Acid) (Agent, error) {
	a, err := Lookup(string(acid))
	if err != nil || a.Direction != model.DirectionLower {
		return Agent{}, fmt.Errorf("%w: %q", ErrUnknownAcid, acid)
	}
	return a, nil
}

// ForBase returns the agent for a base choice.
func ForBase(base model.Base) (Agent, error) {
	a, err := Lookup(string(base))
	if err != nil || a.Direction != model.DirectionRaise {
		return Agent{}, fmt.Errorf("%w: %q", ErrUnknownBase, base)
	}
	return a, nil
}

// separatorRegex matches runs of spaces and dashes so that "Muriatic-31" and
// "soda ash" normalize to catalog identifiers.
var separatorRegex = regexp.MustCompile(`[\s-]+`)

func normalize(s string) string {
	return separatorRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

// ParseAcid parses an acid identifier. An empty string selects DefaultAcid.
func ParseAcid(s string) (model.Acid, error) {
	n := normalize(s)
	if n == "" {
		return DefaultAcid, nil
	}
	if _, err := ForAcid(model.Acid(n)); err != nil {
		return "", fmt.Errorf("%w: %s (expected muriatic_31, muriatic_15 or dry_acid)", ErrUnknownAcid, s)
	}
	return model.Acid(n), nil
}

// ParseBase parses a base identifier. An empty string selects DefaultBase.
func ParseBase(s string) (model.Base, error) {
	n := normalize(s)
	if n == "" {
		return DefaultBase, nil
	}
	if _, err := ForBase(model.Base(n)); err != nil {
		return "", fmt.Errorf("%w: %s (expected soda_ash, borax or aeration)", ErrUnknownBase, s)
	}
	return model.Base(n), nil
}

// ParseSurface parses a surface material. An empty string selects
// DefaultSurface.
func ParseSurface(s string) (model.Surface, error) {
	switch n := model.Surface(normalize(s)); n {
	case "":
		return DefaultSurface, nil
	case model.SurfacePlaster, model.SurfaceVinyl, model.SurfaceFiberglass:
		return n, nil
	default:
		return "", fmt.Errorf("%w: %s (expected plaster, vinyl or fiberglass)", ErrUnknownSurface, s)
	}
}
