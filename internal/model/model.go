// Package model defines the core domain types shared across the pH adjuster.
// Inputs are plain float64 readings from test kits; every computed output
// amount is a shopspring/decimal rounded at the engine boundary.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Surface is the interior finish of a pool. It only changes advisory text.
type Surface string

const (
	SurfacePlaster    Surface = "plaster"
	SurfaceVinyl      Surface = "vinyl"
	SurfaceFiberglass Surface = "fiberglass"
)

// Acid identifies the chemical used when lowering pH.
type Acid string

const (
	AcidMuriatic31 Acid = "muriatic_31"
	AcidMuriatic15 Acid = "muriatic_15"
	AcidDry        Acid = "dry_acid"
)

// Base identifies the chemical (or method) used when raising pH.
type Base string

const (
	BaseSodaAsh  Base = "soda_ash"
	BaseBorax    Base = "borax"
	BaseAeration Base = "aeration"
)

// Direction is the way pH has to move to reach the target.
type Direction string

const (
	DirectionRaise    Direction = "raise"
	DirectionLower    Direction = "lower"
	DirectionBalanced Direction = "balanced"
)

// PoolProfile describes the body of water being treated.
type PoolProfile struct {
	VolumeGallons      float64 `json:"volume_gallons"`
	TotalAlkalinityPpm float64 `json:"total_alkalinity_ppm"`
	WaterTemperatureF  float64 `json:"water_temperature_f"` // informational only
	SurfaceMaterial    Surface `json:"surface_material"`
}

// ChemistryTarget is the measured pH and the pH the owner wants.
type ChemistryTarget struct {
	CurrentPh float64 `json:"current_ph"`
	TargetPh  float64 `json:"target_ph"`
}

// ChemicalPreference selects the agent for each direction. Only the one
// matching the computed direction is used.
type ChemicalPreference struct {
	AcidChoice Acid `json:"acid_choice"`
	BaseChoice Base `json:"base_choice"`
}

// Quantity is an amount of product in a display unit.
type Quantity struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   string          `json:"unit"`
}

// DosingPlan describes whether the dose must be added in several portions.
type DosingPlan struct {
	IsSplit       bool            `json:"is_split"`
	StepCount     int             `json:"step_count"`
	AmountPerStep decimal.Decimal `json:"amount_per_step"`
}

// WarningCode categorizes advisory warnings.
type WarningCode string

const (
	WarnTargetOutOfRange      WarningCode = "target_ph_out_of_range"
	WarnLowAlkalinity         WarningCode = "low_alkalinity"
	WarnHighAlkalinity        WarningCode = "high_alkalinity"
	WarnImplausibleAlkalinity WarningCode = "alkalinity_out_of_test_range"
	WarnSurfaceHazard         WarningCode = "surface_hazard"
	WarnSlowProcess           WarningCode = "slow_process"
	WarnInvalidInput          WarningCode = "invalid_input"
)

// Warning is a non-fatal issue the caller must display alongside the dose.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// DoseResult is the full output of one dosing calculation. It has no
// lifecycle of its own and is rebuilt on every input change.
type DoseResult struct {
	Direction          Direction       `json:"direction"`
	ChemicalID         string          `json:"chemical_id,omitempty"`
	ChemicalName       string          `json:"chemical_name"`
	PrimaryDose        Quantity        `json:"primary_dose"`
	SecondaryDose      *Quantity       `json:"secondary_dose,omitempty"`
	AlkalinityDeltaPpm decimal.Decimal `json:"alkalinity_delta_ppm"`
	DosingPlan         DosingPlan      `json:"dosing_plan"`
	Warnings           []Warning       `json:"warnings"`
	Instructions       []string        `json:"instructions"`
	SurfaceAdvisory    *string         `json:"surface_advisory,omitempty"`
}

// Pool is a saved pool profile that dose requests can refer to by ID.
type Pool struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Profile   PoolProfile `json:"profile"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Calculation is an immutable record of one computed dose together with
// the inputs that produced it. PoolID is empty for ad-hoc calculations.
type Calculation struct {
	ID         string             `json:"id" db:"id"`
	PoolID     string             `json:"pool_id,omitempty" db:"pool_id"`
	Profile    PoolProfile        `json:"profile"`
	Target     ChemistryTarget    `json:"target"`
	Preference ChemicalPreference `json:"preference"`
	Result     DoseResult         `json:"result"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
}
