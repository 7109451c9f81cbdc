// Package dose provides the HTTP and WebSocket handlers that expose the
// dosing engine: ad-hoc and saved-pool dose calculations, the calculation
// log, and live recompute-on-input sessions.
//
// Every recorded calculation is appended to the store and published as a
// DoseComputed event. Recording is best effort: a store or broker outage is
// logged but never withholds a computed dose from the caller.
package dose

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aquacalc/ph-adjuster/internal/chemical"
	"github.com/aquacalc/ph-adjuster/internal/dosing"
	"github.com/aquacalc/ph-adjuster/internal/events"
	"github.com/aquacalc/ph-adjuster/internal/metrics"
	"github.com/aquacalc/ph-adjuster/internal/model"
	"github.com/aquacalc/ph-adjuster/internal/store"
)

// ErrMissingPh is returned when a request omits a pH reading.
var ErrMissingPh = errors.New("dose: current_ph and target_ph are required")

// ErrMissingName is returned when a pool is saved without a name.
var ErrMissingName = errors.New("dose: pool name is required")

// Service handles dose calculations. The engine is stateless, so requests
// are not serialized.
type Service struct {
	engine    *dosing.Engine
	store     store.Store
	publisher events.Publisher
}

// NewService creates a new dose service.
// Pass nil for pub if events are not needed.
func NewService(engine *dosing.Engine, st store.Store, pub events.Publisher) *Service {
	if engine == nil {
		engine = dosing.NewEngine(nil)
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{
		engine:    engine,
		store:     st,
		publisher: pub,
	}
}

// --- Request types ---

// ProfileRequest describes a pool in a request body.
type ProfileRequest struct {
	VolumeGallons      float64 `json:"volume_gallons"`
	TotalAlkalinityPpm float64 `json:"total_alkalinity_ppm"`
	WaterTemperatureF  float64 `json:"water_temperature_f"`
	SurfaceMaterial    string  `json:"surface_material"` // plaster, vinyl, fiberglass; empty → plaster
}

// ChemistryRequest holds the pH readings and chemical choices.
type ChemistryRequest struct {
	CurrentPh  *float64 `json:"current_ph"`
	TargetPh   *float64 `json:"target_ph"`
	AcidChoice string   `json:"acid_choice"` // empty → muriatic_31
	BaseChoice string   `json:"base_choice"` // empty → soda_ash
}

// DoseRequest is the JSON body for POST /api/v1/dose and for each message
// on a live session.
type DoseRequest struct {
	Pool ProfileRequest `json:"pool"`
	ChemistryRequest
}

// CreatePoolRequest is the JSON body for POST /api/v1/pools.
type CreatePoolRequest struct {
	Name string `json:"name"`
	ProfileRequest
}

func (req ProfileRequest) parse() (model.PoolProfile, error) {
	surface, err := chemical.ParseSurface(req.SurfaceMaterial)
	if err != nil {
		return model.PoolProfile{}, err
	}
	return model.PoolProfile{
		VolumeGallons:      req.VolumeGallons,
		TotalAlkalinityPpm: req.TotalAlkalinityPpm,
		WaterTemperatureF:  req.WaterTemperatureF,
		SurfaceMaterial:    surface,
	}, nil
}

func (req ChemistryRequest) parse() (model.ChemistryTarget, model.ChemicalPreference, error) {
	if req.CurrentPh == nil || req.TargetPh == nil {
		return model.ChemistryTarget{}, model.ChemicalPreference{}, ErrMissingPh
	}
	acid, err := chemical.ParseAcid(req.AcidChoice)
	if err != nil {
		return model.ChemistryTarget{}, model.ChemicalPreference{}, err
	}
	base, err := chemical.ParseBase(req.BaseChoice)
	if err != nil {
		return model.ChemistryTarget{}, model.ChemicalPreference{}, err
	}
	return model.ChemistryTarget{CurrentPh: *req.CurrentPh, TargetPh: *req.TargetPh},
		model.ChemicalPreference{AcidChoice: acid, BaseChoice: base},
		nil
}

func (req DoseRequest) parse() (model.PoolProfile, model.ChemistryTarget, model.ChemicalPreference, error) {
	profile, err := req.Pool.parse()
	if err != nil {
		return model.PoolProfile{}, model.ChemistryTarget{}, model.ChemicalPreference{}, err
	}
	target, pref, err := req.ChemistryRequest.parse()
	if err != nil {
		return model.PoolProfile{}, model.ChemistryTarget{}, model.ChemicalPreference{}, err
	}
	return profile, target, pref, nil
}

// --- HTTP Handlers ---

// ListChemicals handles GET /api/v1/chemicals
func (s *Service) ListChemicals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, chemical.Catalog())
}

// ComputeDose handles POST /api/v1/dose
// Computes a dose from an inline pool profile and records the calculation.
func (s *Service) ComputeDose(w http.ResponseWriter, r *http.Request) {
	var req DoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	profile, target, pref, err := req.parse()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	calc := s.calculate("", profile, target, pref)
	s.record(r.Context(), calc)

	writeJSON(w, http.StatusOK, calc)
}

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, ErrMissingName.Error(), http.StatusBadRequest)
		return
	}
	profile, err := req.ProfileRequest.parse()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	pool := &model.Pool{
		ID:        uuid.New().String(),
		Name:      name,
		Profile:   profile,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreatePool(r.Context(), pool); err != nil {
		slog.Error("create pool failed", "pool", pool.ID, "err", err)
		writeError(w, "failed to save pool", http.StatusInternalServerError)
		return
	}

	slog.Info("pool created",
		"id", pool.ID,
		"name", pool.Name,
		"volume_gallons", profile.VolumeGallons,
		"surface", profile.SurfaceMaterial,
	)

	writeJSON(w, http.StatusCreated, pool)
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListPools(r.Context())
	if err != nil {
		writeError(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	if pools == nil {
		pools = []model.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// ComputePoolDose handles POST /api/v1/pools/{poolID}/dose
// Uses the saved profile; the body carries only readings and choices.
func (s *Service) ComputePoolDose(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}

	var req ChemistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	target, pref, err := req.parse()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	calc := s.calculate(pool.ID, pool.Profile, target, pref)
	s.record(r.Context(), calc)

	writeJSON(w, http.StatusOK, calc)
}

// GetPoolHistory handles GET /api/v1/pools/{poolID}/history
// Returns the pool's calculation log, oldest first.
func (s *Service) GetPoolHistory(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}

	calcs, err := s.store.ListCalculationsByPool(r.Context(), pool.ID)
	if err != nil {
		writeError(w, "failed to get pool history", http.StatusInternalServerError)
		return
	}
	if calcs == nil {
		calcs = []model.Calculation{}
	}
	writeJSON(w, http.StatusOK, calcs)
}

// GetCalculation handles GET /api/v1/calculations/{calcID}
func (s *Service) GetCalculation(w http.ResponseWriter, r *http.Request) {
	calcID := chi.URLParam(r, "calcID")

	calc, err := s.store.GetCalculation(r.Context(), calcID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "calculation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to get calculation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// --- Internals ---

func (s *Service) loadPool(w http.ResponseWriter, r *http.Request) (*model.Pool, bool) {
	poolID := chi.URLParam(r, "poolID")

	pool, err := s.store.GetPool(r.Context(), poolID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "pool not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		writeError(w, "failed to load pool", http.StatusInternalServerError)
		return nil, false
	}
	return pool, true
}

// compute runs the engine and records engine metrics.
func (s *Service) compute(profile model.PoolProfile, target model.ChemistryTarget, pref model.ChemicalPreference) model.DoseResult {
	start := time.Now()
	result := s.engine.ComputeDose(profile, target, pref)
	metrics.ObserveDose(result, time.Since(start))
	return result
}

func (s *Service) calculate(poolID string, profile model.PoolProfile, target model.ChemistryTarget, pref model.ChemicalPreference) *model.Calculation {
	return &model.Calculation{
		ID:         uuid.New().String(),
		PoolID:     poolID,
		Profile:    profile,
		Target:     target,
		Preference: pref,
		Result:     s.compute(profile, target, pref),
		CreatedAt:  time.Now().UTC(),
	}
}

// record appends calc to the log and publishes it. Failures are logged only.
func (s *Service) record(ctx context.Context, calc *model.Calculation) {
	if err := s.store.InsertCalculation(ctx, calc); err != nil {
		metrics.RecordFailures.WithLabelValues("store").Inc()
		slog.Error("record calculation failed", "calculation", calc.ID, "pool", calc.PoolID, "err", err)
	}
	if err := s.publisher.Publish(ctx, events.NewDoseComputed(calc)); err != nil {
		metrics.RecordFailures.WithLabelValues("publish").Inc()
		slog.Warn("publish dose event failed", "calculation", calc.ID, "err", err)
	}

	res := calc.Result
	slog.Info("dose computed",
		"calculation", calc.ID,
		"pool", calc.PoolID,
		"direction", res.Direction,
		"chemical", res.ChemicalID,
		"amount", res.PrimaryDose.Amount.String(),
		"unit", res.PrimaryDose.Unit,
		"steps", res.DosingPlan.StepCount,
		"warnings", len(res.Warnings),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
