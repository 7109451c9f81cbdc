// Package dosing implements the pH adjustment dosing engine: it turns a
// desired pH change into a chemical dose, accounts for the buffering of
// total alkalinity, splits unsafe single doses into a plan and assembles
// calibrated safety guidance.
//
// The engine is a pure function of its arguments. It performs no I/O and
// holds no mutable state, so one Engine can serve any number of concurrent
// requests. Internal math is unrounded float64; results are converted to
// decimal and rounded only when the DoseResult is assembled.
package dosing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/aquacalc/ph-adjuster/internal/chemical"
	"github.com/aquacalc/ph-adjuster/internal/model"
	"github.com/aquacalc/ph-adjuster/internal/safety"
)

const (
	// BalancedTolerance is the smallest pH change worth dosing for.
	BalancedTolerance = 0.05

	// PhStep is the pH shift the reference doses in package chemical produce.
	PhStep = 0.2

	// ReferenceAlkalinityPpm is the neutral buffering level of the calibration.
	ReferenceAlkalinityPpm = 100.0

	// ReferenceVolumeGallons is the pool size of the calibration.
	ReferenceVolumeGallons = 10000.0

	OuncesPerPound       = 16.0
	FluidOuncesPerGallon = 128.0

	MinIdealPh = 7.2
	MaxIdealPh = 7.8

	LowAlkalinityPpm  = 80.0
	HighAlkalinityPpm = 150.0

	// Test strips and drop kits are not trustworthy outside this range.
	MinTestAlkalinityPpm = 50.0
	MaxTestAlkalinityPpm = 200.0

	// PlasterPhFloor is the lowest pH plaster tolerates without etching.
	PlasterPhFloor = 7.2

	// CirculationHours is the minimum mixing time before re-testing.
	CirculationHours = 2
)

var (
	// DoseScale is the number of decimal places for dose amounts.
	DoseScale int32 = 1

	// AlkalinityScale rounds the alkalinity side effect to whole ppm.
	AlkalinityScale int32 = 0

	// SecondaryScale is the number of decimal places for gallons and pounds.
	SecondaryScale int32 = 2
)

// Engine computes dosing results using a set of safety ceilings.
// It is stateless: all pool data is passed as arguments.
type Engine struct {
	limiter *safety.Limiter
}

// NewEngine creates an engine. A nil limiter selects the default ceilings.
func NewEngine(limiter *safety.Limiter) *Engine {
	if limiter == nil {
		limiter = safety.DefaultLimiter()
	}
	return &Engine{limiter: limiter}
}

// Limiter returns the safety ceilings used by the engine.
func (e *Engine) Limiter() *safety.Limiter {
	return e.limiter
}

var defaultEngine = NewEngine(nil)

// ComputeDose computes a dose with the default safety ceilings.
func ComputeDose(profile model.PoolProfile, target model.ChemistryTarget, pref model.ChemicalPreference) model.DoseResult {
	return defaultEngine.ComputeDose(profile, target, pref)
}

// ComputeDose translates the pH change from target.CurrentPh to
// target.TargetPh into a dose of the preferred agent.
//
// It is total: out-of-range or degenerate inputs produce warnings and zero
// doses rather than errors, and the returned result is always complete.
func (e *Engine) ComputeDose(profile model.PoolProfile, target model.ChemistryTarget, pref model.ChemicalPreference) model.DoseResult {
	if !finite(target.CurrentPh) || !finite(target.TargetPh) {
		return invalidReadings()
	}

	deltaPh := target.TargetPh - target.CurrentPh
	if math.Abs(deltaPh) < BalancedTolerance {
		return balanced()
	}

	direction := model.DirectionLower
	if deltaPh > 0 {
		direction = model.DirectionRaise
	}

	var warnings []model.Warning

	volumeFactor := profile.VolumeGallons / ReferenceVolumeGallons
	if !(profile.VolumeGallons > 0) || math.IsInf(profile.VolumeGallons, 0) {
		warnings = append(warnings, warn(model.WarnInvalidInput,
			"Pool volume must be a positive number of gallons; no dose can be calculated."))
		volumeFactor = 0
	}

	alkalinity := profile.TotalAlkalinityPpm
	alkalinityValid := alkalinity >= 0 && !math.IsInf(alkalinity, 0)
	if !alkalinityValid {
		warnings = append(warnings, warn(model.WarnInvalidInput,
			"Total alkalinity must be zero or more ppm; treating it as 0."))
		alkalinity = 0
	}
	taRatio := alkalinity / ReferenceAlkalinityPpm

	agent, w := selectAgent(direction, pref)
	warnings = append(warnings, w...)

	if agent.Form == chemical.FormPhysical {
		warnings = append(warnings, warn(model.WarnSlowProcess,
			"Aeration raises pH slowly, over hours to days, and needs regular re-testing."))
		warnings = append(warnings, standingWarnings(target, profile.TotalAlkalinityPpm, alkalinityValid)...)
		return aeration(agent, warnings)
	}

	dose := referenceDose(math.Abs(deltaPh), agent, taRatio, volumeFactor)
	alkDelta := alkalinityEffect(dose, agent, volumeFactor)

	// Split on the amount the caller sees, so a displayed dose equal to the
	// ceiling is a single addition.
	plan := e.limiter.Plan(displayed(dose), agent.Form, volumeFactor)
	if plan.Overflow {
		warnings = append(warnings, warn(model.WarnInvalidInput,
			"The calculated dose is too large to be meaningful; check the pool volume and alkalinity readings."))
		dose, alkDelta = 0, 0
		plan = e.limiter.Plan(0, agent.Form, volumeFactor)
	}

	if agent.ID == string(model.AcidDry) && profile.SurfaceMaterial == model.SurfacePlaster {
		warnings = append(warnings, warn(model.WarnSurfaceHazard,
			"Undissolved dry acid resting on plaster can etch the surface locally; dissolve it fully before adding it to the pool."))
	}
	warnings = append(warnings, standingWarnings(target, profile.TotalAlkalinityPpm, alkalinityValid)...)

	return model.DoseResult{
		Direction:    direction,
		ChemicalID:   agent.ID,
		ChemicalName: agent.Name,
		PrimaryDose: model.Quantity{
			Amount: toDecimal(dose, DoseScale),
			Unit:   agent.Unit,
		},
		SecondaryDose:      secondaryDose(dose, agent.Unit),
		AlkalinityDeltaPpm: toDecimal(alkDelta, AlkalinityScale),
		DosingPlan: model.DosingPlan{
			IsSplit:       plan.IsSplit,
			StepCount:     plan.StepCount,
			AmountPerStep: toDecimal(plan.AmountPerStep, DoseScale),
		},
		Warnings:        nonNil(warnings),
		Instructions:    instructions(agent, dose, plan),
		SurfaceAdvisory: surfaceAdvisory(direction, profile.SurfaceMaterial),
	}
}

// referenceDose is the single dose formula shared by every agent:
//
//	dose = (|ΔpH| / 0.2) × referenceOz × taRatio × volumeFactor × potency
func referenceDose(absDeltaPh float64, agent chemical.Agent, taRatio, volumeFactor float64) float64 {
	return (absDeltaPh / PhStep) * agent.ReferenceOz * taRatio * volumeFactor * agent.Potency
}

// alkalinityEffect is the signed ppm change in total alkalinity caused by
// adding dose ounces of agent. It is zero when the volume is degenerate.
func alkalinityEffect(dose float64, agent chemical.Agent, volumeFactor float64) float64 {
	if volumeFactor <= 0 {
		return 0
	}
	effect := dose * agent.AlkalinityPerOz / volumeFactor
	if agent.Direction == model.DirectionLower {
		return -effect
	}
	return effect
}

// secondaryDose re-expresses dose in gallons or pounds once the displayed
// primary amount crosses the readability threshold of its unit. It converts
// the displayed amount, so 18.0 oz always reads as 1.13 lbs.
func secondaryDose(dose float64, unit string) *model.Quantity {
	var factor decimal.Decimal
	var to string
	switch unit {
	case chemical.UnitOunce:
		factor, to = decimal.NewFromFloat(OuncesPerPound), chemical.UnitPound
	case chemical.UnitFluidOunce:
		factor, to = decimal.NewFromFloat(FluidOuncesPerGallon), chemical.UnitGallon
	default:
		return nil
	}
	shown := toDecimal(dose, DoseScale)
	if !shown.GreaterThan(factor) {
		return nil
	}
	return &model.Quantity{Amount: shown.Div(factor).Round(SecondaryScale), Unit: to}
}

// selectAgent picks the preferred agent for direction, falling back to the
// default agent when the preference is empty or unknown.
func selectAgent(direction model.Direction, pref model.ChemicalPreference) (chemical.Agent, []model.Warning) {
	var (
		agent  chemical.Agent
		err    error
		choice string
	)
	if direction == model.DirectionLower {
		choice = string(pref.AcidChoice)
		if agent, err = chemical.ForAcid(pref.AcidChoice); err != nil {
			agent, _ = chemical.ForAcid(chemical.DefaultAcid)
		}
	} else {
		choice = string(pref.BaseChoice)
		if agent, err = chemical.ForBase(pref.BaseChoice); err != nil {
			agent, _ = chemical.ForBase(chemical.DefaultBase)
		}
	}
	if err == nil || choice == "" {
		return agent, nil
	}
	return agent, []model.Warning{warn(model.WarnInvalidInput,
		fmt.Sprintf("Unknown chemical %q; using %s instead.", choice, agent.Name))}
}

func standingWarnings(target model.ChemistryTarget, alkalinity float64, alkalinityValid bool) []model.Warning {
	var warnings []model.Warning
	if target.TargetPh < MinIdealPh || target.TargetPh > MaxIdealPh {
		warnings = append(warnings, warn(model.WarnTargetOutOfRange,
			fmt.Sprintf("Target pH %s is outside the recommended range of 7.2 to 7.8.", formatPh(target.TargetPh))))
	}
	if !alkalinityValid {
		return warnings
	}
	switch {
	case alkalinity < LowAlkalinityPpm:
		warnings = append(warnings, warn(model.WarnLowAlkalinity,
			"Total alkalinity is below 80 ppm; pH is likely to swing rapidly, so adjust in small steps."))
	case alkalinity > HighAlkalinityPpm:
		warnings = append(warnings, warn(model.WarnHighAlkalinity,
			"Total alkalinity is above 150 ppm; the water resists pH change, so expect to dose in several portions."))
	}
	if alkalinity < MinTestAlkalinityPpm || alkalinity > MaxTestAlkalinityPpm {
		warnings = append(warnings, warn(model.WarnImplausibleAlkalinity,
			"Total alkalinity is outside the 50 to 200 ppm range the dosing constants are calibrated for; re-test before dosing."))
	}
	return warnings
}

func instructions(agent chemical.Agent, dose float64, plan safety.Plan) []string {
	out := []string{
		"Run the circulation pump before, during and after adding chemicals.",
	}
	if plan.IsSplit {
		out = append(out,
			fmt.Sprintf("Divide the dose into %d portions of %s %s of %s and add only the first portion now.",
				plan.StepCount, toDecimal(plan.AmountPerStep, DoseScale).StringFixed(DoseScale), agent.Unit, agent.Name),
			agent.Placement,
			fmt.Sprintf("Circulate for at least %d hours, then re-test pH before adding the next portion.", CirculationHours),
			"Recalculate before each remaining portion; pH response is non-linear near the target, so the original estimate may no longer apply.",
		)
	} else {
		out = append(out,
			fmt.Sprintf("Add %s %s of %s.", toDecimal(dose, DoseScale).StringFixed(DoseScale), agent.Unit, agent.Name),
			agent.Placement,
			fmt.Sprintf("Circulate for at least %d hours, then re-test pH.", CirculationHours),
		)
	}
	if agent.Direction == model.DirectionLower {
		out = append(out, "Always add acid to water, never water to acid, and never mix acid with chlorine products.")
	}
	return out
}

func surfaceAdvisory(direction model.Direction, surface model.Surface) *string {
	if direction != model.DirectionLower {
		return nil
	}
	var s string
	switch surface {
	case model.SurfacePlaster:
		s = fmt.Sprintf("Plaster etches in acidic water. Do not let pH fall below %s while adjusting.", formatPh(PlasterPhFloor))
	case model.SurfaceVinyl, model.SurfaceFiberglass:
		s = "Vinyl and fiberglass pools often need less acid than estimated. Re-test before adding a second dose."
	default:
		return nil
	}
	return &s
}

func balanced() model.DoseResult {
	return model.DoseResult{
		Direction:          model.DirectionBalanced,
		PrimaryDose:        model.Quantity{Amount: decimal.Zero},
		AlkalinityDeltaPpm: decimal.Zero,
		DosingPlan:         model.DosingPlan{StepCount: 1, AmountPerStep: decimal.Zero},
		Warnings:           []model.Warning{},
		Instructions: []string{
			"pH is already balanced. Keep the pump running to maintain circulation.",
		},
	}
}

func invalidReadings() model.DoseResult {
	r := balanced()
	r.Warnings = []model.Warning{warn(model.WarnInvalidInput,
		"Current and target pH must both be numbers; no dose can be calculated.")}
	r.Instructions = []string{"Re-test pH and enter both readings."}
	return r
}

func aeration(agent chemical.Agent, warnings []model.Warning) model.DoseResult {
	return model.DoseResult{
		Direction:          model.DirectionRaise,
		ChemicalID:         agent.ID,
		ChemicalName:       agent.Name,
		PrimaryDose:        model.Quantity{Amount: decimal.Zero, Unit: agent.Unit},
		AlkalinityDeltaPpm: decimal.Zero,
		DosingPlan:         model.DosingPlan{StepCount: 1, AmountPerStep: decimal.Zero},
		Warnings:           nonNil(warnings),
		Instructions: []string{
			"Keep the circulation pump running while aerating.",
			agent.Placement,
			"Aerate for several hours a day and re-test pH daily; the rise takes hours to days.",
			"Stop aerating once pH reaches the target.",
		},
	}
}

func warn(code model.WarningCode, msg string) model.Warning {
	return model.Warning{Code: code, Message: msg}
}

func nonNil(w []model.Warning) []model.Warning {
	if w == nil {
		return []model.Warning{}
	}
	return w
}

// toDecimal converts an intermediate value to a rounded decimal. Non-finite
// values, which only arise from absurd inputs, become zero.
func toDecimal(v float64, places int32) decimal.Decimal {
	if !finite(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(places)
}

// displayed is dose as reported in PrimaryDose. Non-finite values pass
// through unchanged.
func displayed(dose float64) float64 {
	if !finite(dose) {
		return dose
	}
	return toDecimal(dose, DoseScale).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatPh(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
