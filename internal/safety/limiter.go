// Package safety implements the single-dose ceilings that decide when a
// chemical addition must be split into several portions.
//
// Large single additions of acid or base damage surfaces and react
// vigorously near the point of addition. Every ceiling is expressed per
// 10,000 gallons and scales linearly with pool volume, matching the
// calibration of the dosing constants in package chemical.
package safety

import (
	"errors"
	"math"

	"github.com/aquacalc/ph-adjuster/internal/chemical"
)

// Default ceilings per 10,000 gallons.
const (
	// DefaultLiquidCeilingOz is roughly one quart of muriatic acid.
	DefaultLiquidCeilingOz = 32.0

	// DefaultSolidCeilingOz applies to any product dosed by weight.
	DefaultSolidCeilingOz = 48.0
)

// ErrInvalidCeiling is returned when a configured ceiling is not positive.
var ErrInvalidCeiling = errors.New("safety: ceiling must be positive")

// MaxSteps bounds the number of portions a plan may have. A dose that needs
// more is not a usable plan and is reported through Plan.Overflow.
const MaxSteps = math.MaxInt32

// Plan is the unrounded split decision for one dose.
type Plan struct {
	IsSplit       bool
	StepCount     int
	AmountPerStep float64
	Ceiling       float64

	// Overflow is set when dose is not finite or would need more than
	// MaxSteps portions. The plan is then a single step.
	Overflow bool
}

// Limiter holds the per-form single-dose ceilings.
type Limiter struct {
	// LiquidCeilingOz is the largest liquid addition, in fl oz per 10k gal.
	LiquidCeilingOz float64

	// SolidCeilingOz is the largest solid addition, in oz per 10k gal.
	SolidCeilingOz float64
}

// NewLimiter creates a limiter with custom ceilings.
func NewLimiter(liquidCeilingOz, solidCeilingOz float64) (*Limiter, error) {
	if !(liquidCeilingOz > 0) || !(solidCeilingOz > 0) ||
		math.IsInf(liquidCeilingOz, 0) || math.IsInf(solidCeilingOz, 0) {
		return nil, ErrInvalidCeiling
	}
	return &Limiter{
		LiquidCeilingOz: liquidCeilingOz,
		SolidCeilingOz:  solidCeilingOz,
	}, nil
}

// DefaultLimiter returns a limiter with the default ceilings.
func DefaultLimiter() *Limiter {
	return &Limiter{
		LiquidCeilingOz: DefaultLiquidCeilingOz,
		SolidCeilingOz:  DefaultSolidCeilingOz,
	}
}

// Ceiling returns the largest safe single addition for a product form in a
// pool of the given volume factor (gallons / 10,000). Physical methods have
// no ceiling and return 0.
func (l *Limiter) Ceiling(form chemical.Form, volumeFactor float64) float64 {
	switch form {
	case chemical.FormLiquid:
		return l.LiquidCeilingOz * volumeFactor
	case chemical.FormSolid:
		return l.SolidCeilingOz * volumeFactor
	default:
		return 0
	}
}

// Plan decides whether dose must be split.
//
// When dose exceeds the ceiling the plan has ceil(dose / ceiling) equal
// portions. A non-positive ceiling never splits, so degenerate pools yield a
// single-step plan instead of a division by zero. A dose too large to split
// into at most MaxSteps portions is returned as one step with Overflow set.
func (l *Limiter) Plan(dose float64, form chemical.Form, volumeFactor float64) Plan {
	ceiling := l.Ceiling(form, volumeFactor)
	plan := Plan{StepCount: 1, AmountPerStep: dose, Ceiling: ceiling}

	if math.IsInf(dose, 0) || math.IsNaN(dose) {
		plan.Overflow = true
		return plan
	}
	if ceiling <= 0 || !(dose > ceiling) {
		return plan
	}

	steps := math.Ceil(dose / ceiling)
	if math.IsNaN(steps) || steps > MaxSteps {
		plan.Overflow = true
		return plan
	}

	plan.IsSplit = true
	plan.StepCount = int(steps)
	plan.AmountPerStep = dose / steps
	return plan
}
