package chemical

import (
	"errors"
	"testing"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

func TestParseAcid_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want model.Acid
	}{
		{"muriatic_31", model.AcidMuriatic31},
		{"Muriatic-31", model.AcidMuriatic31},
		{"  muriatic 15 ", model.AcidMuriatic15},
		{"DRY_ACID", model.AcidDry},
		{"dry acid", model.AcidDry},
		{"", DefaultAcid},
	}
	for _, tt := range tests {
		got, err := ParseAcid(tt.in)
		if err != nil {
			t.Errorf("ParseAcid(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAcid(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestParseAcid_Invalid(t *testing.T) {
	for _, in := range []string{"vinegar", "soda_ash", "muriatic"} {
		_, err := ParseAcid(in)
		if !errors.Is(err, ErrUnknownAcid) {
			t.Errorf("ParseAcid(%q): expected ErrUnknownAcid, got %v", in, err)
		}
	}
}

func TestParseBase(t *testing.T) {
	got, err := ParseBase("Soda Ash")
	if err != nil || got != model.BaseSodaAsh {
		t.Errorf("expected soda_ash, got %s (%v)", got, err)
	}
	got, err = ParseBase("")
	if err != nil || got != DefaultBase {
		t.Errorf("expected default base, got %s (%v)", got, err)
	}
	got, err = ParseBase("aeration")
	if err != nil || got != model.BaseAeration {
		t.Errorf("expected aeration, got %s (%v)", got, err)
	}
	if _, err := ParseBase("dry_acid"); !errors.Is(err, ErrUnknownBase) {
		t.Errorf("an acid is not a base, got %v", err)
	}
}

func TestParseSurface(t *testing.T) {
	got, err := ParseSurface("Fiberglass")
	if err != nil || got != model.SurfaceFiberglass {
		t.Errorf("expected fiberglass, got %s (%v)", got, err)
	}
	got, err = ParseSurface("")
	if err != nil || got != DefaultSurface {
		t.Errorf("expected default surface, got %s (%v)", got, err)
	}
	if _, err := ParseSurface("tile"); !errors.Is(err, ErrUnknownSurface) {
		t.Errorf("expected ErrUnknownSurface, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	a, err := Lookup("borax")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Direction != model.DirectionRaise || a.Form != FormSolid || a.Unit != UnitOunce {
		t.Errorf("unexpected borax entry: %+v", a)
	}
	if _, err := Lookup("chlorine"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestForAcid_RejectsBase(t *testing.T) {
	if _, err := ForAcid(model.Acid(model.BaseSodaAsh)); !errors.Is(err, ErrUnknownAcid) {
		t.Errorf("expected ErrUnknownAcid, got %v", err)
	}
	if _, err := ForBase(model.Base(model.AcidMuriatic31)); !errors.Is(err, ErrUnknownBase) {
		t.Errorf("expected ErrUnknownBase, got %v", err)
	}
}

func TestCatalog_Constants(t *testing.T) {
	m31, _ := ForAcid(model.AcidMuriatic31)
	m15, _ := ForAcid(model.AcidMuriatic15)
	dry, _ := ForAcid(model.AcidDry)

	if m15.Potency != 2*m31.Potency {
		t.Errorf("15%% acid should need twice the volume, got potency %v", m15.Potency)
	}
	if dry.Potency/m31.Potency != 1.6 {
		t.Errorf("dry acid should need 1.6× the amount, got %v", dry.Potency)
	}
	if m15.AlkalinityPerOz*m15.Potency != m31.AlkalinityPerOz {
		t.Errorf("15%% acid should consume the same alkalinity per dose, got %v", m15.AlkalinityPerOz)
	}
	if m31.Form != FormLiquid || m31.Unit != UnitFluidOunce {
		t.Errorf("muriatic acid is a liquid dosed by fl oz: %+v", m31)
	}
	if dry.Form != FormSolid || dry.Unit != UnitOunce {
		t.Errorf("dry acid is a solid dosed by oz: %+v", dry)
	}
}

func TestCatalog_EveryAgentHasPlacement(t *testing.T) {
	agents := Catalog()
	if len(agents) != 6 {
		t.Fatalf("expected 6 agents, got %d", len(agents))
	}
	for _, a := range agents {
		if a.Placement == "" {
			t.Errorf("%s has no placement instruction", a.ID)
		}
		if a.Form != FormPhysical && (a.ReferenceOz <= 0 || a.Potency <= 0) {
			t.Errorf("%s needs a positive reference dose and potency", a.ID)
		}
	}

	// Callers get a copy.
	agents[0].Name = "changed"
	if Catalog()[0].Name == "changed" {
		t.Error("Catalog should return a copy")
	}
}
