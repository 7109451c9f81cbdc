// Package events publishes notifications about computed doses so that other
// systems (dashboards, automated feeders, audit consumers) can react without
// polling the calculation log.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

// SubjectPrefix is the NATS subject prefix; the dose direction is appended.
const SubjectPrefix = "dose.computed"

// ErrNotConnected is returned when publishing on a closed publisher.
var ErrNotConnected = errors.New("events: not connected")

// DoseComputed is emitted once for every recorded calculation.
type DoseComputed struct {
	CalculationID string              `json:"calculation_id"`
	PoolID        string              `json:"pool_id,omitempty"`
	Direction     model.Direction     `json:"direction"`
	ChemicalID    string              `json:"chemical_id,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Unit          string              `json:"unit"`
	StepCount     int                 `json:"step_count"`
	Warnings      []model.WarningCode `json:"warnings"`
	ComputedAt    time.Time           `json:"computed_at"`
}

// NewDoseComputed builds the event for a recorded calculation.
func NewDoseComputed(c *model.Calculation) DoseComputed {
	codes := make([]model.WarningCode, 0, len(c.Result.Warnings))
	for _, w := range c.Result.Warnings {
		codes = append(codes, w.Code)
	}
	return DoseComputed{
		CalculationID: c.ID,
		PoolID:        c.PoolID,
		Direction:     c.Result.Direction,
		ChemicalID:    c.Result.ChemicalID,
		Amount:        c.Result.PrimaryDose.Amount,
		Unit:          c.Result.PrimaryDose.Unit,
		StepCount:     c.Result.DosingPlan.StepCount,
		Warnings:      codes,
		ComputedAt:    c.CreatedAt,
	}
}

// Subject returns the subject a DoseComputed event is published on.
func Subject(direction model.Direction) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, direction)
}

// Publisher delivers dose events.
type Publisher interface {
	Publish(ctx context.Context, ev DoseComputed) error
	Close()
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DoseComputed) error { return nil }
func (NopPublisher) Close()                                      {}

// MultiPublisher delivers each event to every publisher in order. A failure
// in one does not prevent delivery to the others.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev DoseComputed) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() {
	for _, p := range m {
		p.Close()
	}
}

// Config holds NATS configuration.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// DefaultConfig returns a config for url with conservative reconnect settings.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		Name:           "ph-adjuster",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 5 * time.Second,
	}
}

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(cfg Config) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish sends ev on Subject(ev.Direction).
func (p *NATSPublisher) Publish(ctx context.Context, ev DoseComputed) error {
	if p.conn == nil || p.conn.IsClosed() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.conn.Publish(Subject(ev.Direction), payload)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
