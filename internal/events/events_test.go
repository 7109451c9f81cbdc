package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

func TestSubject(t *testing.T) {
	if got := Subject(model.DirectionLower); got != "dose.computed.lower" {
		t.Errorf("expected dose.computed.lower, got %s", got)
	}
	if got := Subject(model.DirectionRaise); got != "dose.computed.raise" {
		t.Errorf("expected dose.computed.raise, got %s", got)
	}
}

func TestNewDoseComputed(t *testing.T) {
	at := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	calc := &model.Calculation{
		ID:     "calc-1",
		PoolID: "pool-1",
		Result: model.DoseResult{
			Direction:   model.DirectionRaise,
			ChemicalID:  "soda_ash",
			PrimaryDose: model.Quantity{Amount: decimal.NewFromFloat(18), Unit: "oz"},
			DosingPlan:  model.DosingPlan{StepCount: 1},
			Warnings: []model.Warning{
				{Code: model.WarnLowAlkalinity, Message: "low"},
				{Code: model.WarnTargetOutOfRange, Message: "range"},
			},
		},
		CreatedAt: at,
	}

	ev := NewDoseComputed(calc)
	if ev.CalculationID != "calc-1" || ev.PoolID != "pool-1" || ev.ChemicalID != "soda_ash" {
		t.Errorf("unexpected identifiers: %+v", ev)
	}
	if !ev.Amount.Equal(decimal.NewFromFloat(18)) || ev.Unit != "oz" {
		t.Errorf("unexpected amount: %s %s", ev.Amount, ev.Unit)
	}
	if len(ev.Warnings) != 2 || ev.Warnings[0] != model.WarnLowAlkalinity {
		t.Errorf("expected warning codes, got %v", ev.Warnings)
	}
	if !ev.ComputedAt.Equal(at) {
		t.Errorf("expected computed_at %v, got %v", at, ev.ComputedAt)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["direction"] != "raise" || raw["amount"] != "18" {
		t.Errorf("unexpected wire format: %s", data)
	}
}

func TestNewDoseComputed_NoWarnings(t *testing.T) {
	ev := NewDoseComputed(&model.Calculation{ID: "c"})
	if ev.Warnings == nil {
		t.Error("warnings should encode as an empty list, not null")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), DoseComputed{}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	p.Close()
}

type recordingPublisher struct {
	events []DoseComputed
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, ev DoseComputed) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() { p.closed = true }

func TestMultiPublisher(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("boom")}
	ok := &recordingPublisher{}
	m := MultiPublisher{failing, ok}

	err := m.Publish(context.Background(), DoseComputed{CalculationID: "c1"})
	if err == nil || err.Error() != "boom" {
		t.Errorf("expected the failing publisher's error, got %v", err)
	}
	if len(ok.events) != 1 || ok.events[0].CalculationID != "c1" {
		t.Errorf("a failure must not block later publishers, got %+v", ok.events)
	}

	m.Close()
	if !failing.closed || !ok.closed {
		t.Error("Close should close every publisher")
	}
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	cfg := DefaultConfig("nats://127.0.0.1:1")
	cfg.ConnectTimeout = 100 * time.Millisecond
	if _, err := NewNATSPublisher(cfg); err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestNATSPublisher_NotConnected(t *testing.T) {
	p := &NATSPublisher{}
	if err := p.Publish(context.Background(), DoseComputed{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	p.Close()
}
