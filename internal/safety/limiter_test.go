package safety

import (
	"math"
	"testing"

	"github.com/aquacalc/ph-adjuster/internal/chemical"
)

func TestNewLimiter_Invalid(t *testing.T) {
	cases := [][2]float64{{0, 48}, {32, 0}, {-1, 48}, {32, math.Inf(1)}, {math.NaN(), 48}}
	for _, c := range cases {
		if _, err := NewLimiter(c[0], c[1]); err != ErrInvalidCeiling {
			t.Errorf("NewLimiter(%v, %v): expected ErrInvalidCeiling, got %v", c[0], c[1], err)
		}
	}
}

func TestCeiling_ScalesWithVolume(t *testing.T) {
	l := DefaultLimiter()

	if got := l.Ceiling(chemical.FormLiquid, 1.5); got != 48 {
		t.Errorf("expected 48 fl oz for 15,000 gallons, got %v", got)
	}
	if got := l.Ceiling(chemical.FormSolid, 0.5); got != 24 {
		t.Errorf("expected 24 oz for 5,000 gallons, got %v", got)
	}
	if got := l.Ceiling(chemical.FormPhysical, 3); got != 0 {
		t.Errorf("physical methods have no ceiling, got %v", got)
	}
}

func TestPlan_UnderCeiling(t *testing.T) {
	p := DefaultLimiter().Plan(36, chemical.FormLiquid, 1.5)
	if p.IsSplit || p.StepCount != 1 || p.AmountPerStep != 36 {
		t.Errorf("expected a single 36 oz step, got %+v", p)
	}
}

func TestPlan_ExactlyAtCeiling(t *testing.T) {
	p := DefaultLimiter().Plan(32, chemical.FormLiquid, 1)
	if p.IsSplit {
		t.Errorf("a dose equal to the ceiling should not split, got %+v", p)
	}
}

func TestPlan_Split(t *testing.T) {
	tests := []struct {
		dose      float64
		form      chemical.Form
		vf        float64
		wantSteps int
	}{
		{33, chemical.FormLiquid, 1, 2},
		{120, chemical.FormLiquid, 1, 4},
		{100, chemical.FormSolid, 1, 3},
		{250, chemical.FormSolid, 2, 3},
	}
	for _, tt := range tests {
		p := DefaultLimiter().Plan(tt.dose, tt.form, tt.vf)
		if !p.IsSplit {
			t.Errorf("dose %v: expected split", tt.dose)
			continue
		}
		if p.StepCount != tt.wantSteps {
			t.Errorf("dose %v: expected %d steps, got %d", tt.dose, tt.wantSteps, p.StepCount)
		}
		if math.Abs(p.AmountPerStep*float64(p.StepCount)-tt.dose) > 1e-9 {
			t.Errorf("dose %v: portions do not add up: %v × %d", tt.dose, p.AmountPerStep, p.StepCount)
		}
		if p.AmountPerStep > p.Ceiling {
			t.Errorf("dose %v: portion %v exceeds ceiling %v", tt.dose, p.AmountPerStep, p.Ceiling)
		}
	}
}

func TestPlan_DegenerateVolumeNeverSplits(t *testing.T) {
	l := DefaultLimiter()
	for _, vf := range []float64{0, -1} {
		p := l.Plan(500, chemical.FormLiquid, vf)
		if p.IsSplit || p.StepCount != 1 {
			t.Errorf("vf=%v: expected an unsplit plan, got %+v", vf, p)
		}
	}
	if p := l.Plan(500, chemical.FormPhysical, 1); p.IsSplit {
		t.Errorf("physical methods never split, got %+v", p)
	}
}

func TestPlan_OverflowIsSingleStep(t *testing.T) {
	l := DefaultLimiter()
	for _, dose := range []float64{1e300, math.Inf(1), math.NaN()} {
		p := l.Plan(dose, chemical.FormSolid, 1)
		if !p.Overflow {
			t.Errorf("dose %v: expected overflow", dose)
		}
		if p.IsSplit || p.StepCount != 1 {
			t.Errorf("dose %v: expected a single-step plan, got %+v", dose, p)
		}
	}

	// Large but representable splits are not overflow.
	if p := l.Plan(48*1e6, chemical.FormSolid, 1); p.Overflow || p.StepCount != 1e6 {
		t.Errorf("expected 1e6 steps, got %+v", p)
	}
}
