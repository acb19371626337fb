// Package commands implements the four write paths of the delivery
// lifecycle. Each status transition is an explicit tagged command, so the
// state machine's preconditions live here instead of being inferred from
// which fields happen to be present in a partial update.
package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/internal/archive"
	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/identity"
	"example.com/comercialav/services/deliveries/internal/metrics"
	"example.com/comercialav/services/deliveries/internal/models"
	"example.com/comercialav/services/deliveries/internal/notify"
	"example.com/comercialav/services/deliveries/internal/store"
	"example.com/comercialav/services/deliveries/internal/syncengine"
)

var (
	// ErrNotAllowed rejects a command the session's capabilities do not cover
	ErrNotAllowed = errors.New("operation not permitted for this role")
	// ErrConfirmationRequired rejects an unconfirmed registration attempt
	ErrConfirmationRequired = errors.New("registration requires explicit confirmation")
	// ErrInvalidTransition rejects a status move the lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrArchived rejects writes against archived records
	ErrArchived = errors.New("archived deliveries are read-only")
)

// ValidationError reports the required fields missing from a command
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

var supplierIDSeparator = regexp.MustCompile(`\s+`)

// Service executes mutation commands against the store
type Service struct {
	store    store.Store
	engine   *syncengine.Engine
	notifier *notify.Notifier
	sweeper  *archive.Sweeper
	metrics  *metrics.Metrics
}

// NewService creates the command service
func NewService(st store.Store, engine *syncengine.Engine, notifier *notify.Notifier, sweeper *archive.Sweeper, m *metrics.Metrics) *Service {
	return &Service{
		store:    st,
		engine:   engine,
		notifier: notifier,
		sweeper:  sweeper,
		metrics:  m,
	}
}

// CreateForecastInput is the purchasing-side forecast creation command
type CreateForecastInput struct {
	Supplier          string
	ExpectedDate      string // calendar date, 2006-01-02
	Notes             string
	Tracking          string
	Island            delivery.IslandCode
	EstimatedPallets  *int
	EstimatedPackages *int
	TransportCompany  string
}

// CreateForecast creates a new delivery forecast. All derived fields are
// computed here, never supplied by the caller: a new record always starts in
// transit with no arrival data.
func (s *Service) CreateForecast(ctx context.Context, sess identity.Session, in CreateForecastInput) (string, error) {
	if !sess.Caps.CanEditPurchasingFields {
		return "", ErrNotAllowed
	}

	var missing []string
	supplier := strings.TrimSpace(in.Supplier)
	if supplier == "" {
		missing = append(missing, "supplier")
	}
	if strings.TrimSpace(in.ExpectedDate) == "" {
		missing = append(missing, "expectedDate")
	}
	if !delivery.ValidIsland(in.Island) {
		missing = append(missing, "island")
	}
	if in.EstimatedPallets != nil && *in.EstimatedPallets < 0 {
		missing = append(missing, "estimatedPallets")
	}
	if in.EstimatedPackages != nil && *in.EstimatedPackages < 0 {
		missing = append(missing, "estimatedPackages")
	}
	if len(missing) > 0 {
		return "", &ValidationError{Missing: missing}
	}

	expected, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(in.ExpectedDate), time.UTC)
	if err != nil {
		return "", &ValidationError{Missing: []string{"expectedDate"}}
	}

	now := time.Now().UTC()
	expectedByName := sess.UpdatedByLabel()
	shipment := &models.Shipment{
		SupplierID:        normalizeSupplierID(supplier),
		SupplierName:      supplier,
		SupplierNameLower: strings.ToLower(supplier),
		ExpectedDate:      expected,
		ExpectedByUserID:  sess.UserID,
		ExpectedByName:    &expectedByName,
		ExpectedNotes:     nilIfEmpty(in.Notes),
		TrackingCode:      nilIfEmpty(in.Tracking),
		Island:            string(in.Island),
		TransportCompany:  nilIfEmpty(in.TransportCompany),
		EstimatedPallets:  in.EstimatedPallets,
		EstimatedPackages: in.EstimatedPackages,
		Status:            models.ShipmentStatusPlanned,
		Archived:          false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	s.engine.SetPending()
	id, err := s.store.Create(ctx, shipment)
	if err != nil {
		s.engine.ClearPending()
		return "", errors.Wrap(err, "failed to create forecast")
	}

	s.count("forecasts_created")
	log.Info().Str("shipment_id", id).Str("supplier", supplier).Str("island", string(in.Island)).Msg("Forecast created")

	// Creation always notifies, no diffing involved
	s.notifier.Notify(ctx, notify.ActionCreated, notify.PayloadFrom(delivery.FromShipment(*shipment), sess.UpdatedByLabel()))

	return id, nil
}

// ForecastEdit carries the purchasing-only field edits. Nil leaves a field
// untouched; an empty string clears it.
type ForecastEdit struct {
	Notes    *string
	Tracking *string
}

// EditForecast updates notes and tracking on an active delivery. Purchasing
// may do this at any status; it never moves the status and never notifies.
func (s *Service) EditForecast(ctx context.Context, sess identity.Session, id string, edit ForecastEdit) error {
	if !sess.Caps.CanEditPurchasingFields {
		return ErrNotAllowed
	}

	prior, err := s.store.GetOne(ctx, id)
	if err != nil {
		return err
	}
	if prior.Archived {
		return ErrArchived
	}

	fields := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if edit.Notes != nil {
		fields["expected_notes"] = nilIfEmpty(*edit.Notes)
	}
	if edit.Tracking != nil {
		fields["tracking_code"] = nilIfEmpty(*edit.Tracking)
	}

	if err := s.store.Update(ctx, id, fields); err != nil {
		return errors.Wrap(err, "failed to update forecast")
	}
	return nil
}

// ArrivalInput is the warehouse arrival command. All three values are
// required together; partial arrival data is rejected.
type ArrivalInput struct {
	Arrival  *time.Time
	Pallets  *int
	Packages *int
}

// RecordArrival moves an in-transit delivery into the warehouse. On a record
// that already left IN_TRANSIT the arrival fields are read-only and the
// command is a no-op write path, not an error, so two racing clients cannot
// regress the status.
func (s *Service) RecordArrival(ctx context.Context, sess identity.Session, id string, in ArrivalInput) error {
	if !sess.Caps.CanEditWarehouseFields {
		return ErrNotAllowed
	}

	var missing []string
	if in.Arrival == nil {
		missing = append(missing, "arrival")
	}
	if in.Pallets == nil {
		missing = append(missing, "pallets")
	} else if *in.Pallets < 0 {
		missing = append(missing, "pallets")
	}
	if in.Packages == nil {
		missing = append(missing, "packages")
	} else if *in.Packages < 0 {
		missing = append(missing, "packages")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}

	prior, err := s.store.GetOne(ctx, id)
	if err != nil {
		return err
	}
	if prior.Archived {
		return ErrArchived
	}
	if !sess.Caps.CanSee(delivery.IslandCode(prior.Island)) {
		return ErrNotAllowed
	}

	priorStatus := delivery.StatusFromRecord(prior.Status)
	if priorStatus != delivery.StatusInTransit {
		log.Debug().Str("shipment_id", id).Str("status", string(priorStatus)).Msg("Arrival already recorded, skipping")
		return nil
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"arrival_date_time":  in.Arrival,
		"pallets":            in.Pallets,
		"packages":           in.Packages,
		"status":             delivery.StatusInWarehouse.RecordValue(),
		"arrival_by_user_id": &sess.UserID,
		"updated_at":         now,
	}
	if err := s.store.Update(ctx, id, fields); err != nil {
		return errors.Wrap(err, "failed to record arrival")
	}

	s.count("arrivals_recorded")
	log.Info().Str("shipment_id", id).Int("pallets", *in.Pallets).Int("packages", *in.Packages).Msg("Arrival recorded")

	if action, ok := notify.ActionForTransition(priorStatus, delivery.StatusInWarehouse); ok {
		post := delivery.FromShipment(*prior)
		post.Status = delivery.StatusInWarehouse
		post.Arrival = in.Arrival
		post.Pallets = in.Pallets
		post.Packages = in.Packages
		post.LastUpdate = now
		s.notifier.Notify(ctx, action, notify.PayloadFrom(post, sess.UpdatedByLabel()))
	}
	return nil
}

// ConfirmRegistration finalizes a delivery that is in the warehouse. The
// confirmation flag must be set by a deliberate user action; the transition
// is irreversible once committed. Confirming an already-registered delivery
// is a no-op.
func (s *Service) ConfirmRegistration(ctx context.Context, sess identity.Session, id string, confirmed bool) error {
	if !sess.Caps.CanEditWarehouseFields {
		return ErrNotAllowed
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	prior, err := s.store.GetOne(ctx, id)
	if err != nil {
		return err
	}
	if prior.Archived {
		return ErrArchived
	}
	if !sess.Caps.CanSee(delivery.IslandCode(prior.Island)) {
		return ErrNotAllowed
	}

	priorStatus := delivery.StatusFromRecord(prior.Status)
	if priorStatus == delivery.StatusRegistered {
		return nil
	}
	if priorStatus != delivery.StatusInWarehouse {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	registeredBy := sess.UpdatedByLabel()
	fields := map[string]interface{}{
		"status":                delivery.StatusRegistered.RecordValue(),
		"registered_at":         now,
		"registered_by_user_id": &sess.UserID,
		"registered_by_name":    &registeredBy,
		"updated_at":            now,
	}
	if err := s.store.Update(ctx, id, fields); err != nil {
		return errors.Wrap(err, "failed to confirm registration")
	}

	s.count("registrations_confirmed")
	log.Info().Str("shipment_id", id).Msg("Registration confirmed")

	if action, ok := notify.ActionForTransition(priorStatus, delivery.StatusRegistered); ok {
		post := delivery.FromShipment(*prior)
		post.Status = delivery.StatusRegistered
		post.LastUpdate = now
		s.notifier.Notify(ctx, action, notify.PayloadFrom(post, sess.UpdatedByLabel()))
	}
	return nil
}

// EditObservations updates the warehouse free-text field, visible to all
// roles, at any pre-archival status.
func (s *Service) EditObservations(ctx context.Context, sess identity.Session, id string, observations string) error {
	if !sess.Caps.CanEditWarehouseFields {
		return ErrNotAllowed
	}

	prior, err := s.store.GetOne(ctx, id)
	if err != nil {
		return err
	}
	if prior.Archived {
		return ErrArchived
	}
	if !sess.Caps.CanSee(delivery.IslandCode(prior.Island)) {
		return ErrNotAllowed
	}

	fields := map[string]interface{}{
		"observations": nilIfEmpty(observations),
		"updated_at":   time.Now().UTC(),
	}
	if err := s.store.Update(ctx, id, fields); err != nil {
		return errors.Wrap(err, "failed to update observations")
	}
	return nil
}

// DeleteForecast removes an active delivery. Only purchasing may delete,
// and only while the record is still in the active partition.
func (s *Service) DeleteForecast(ctx context.Context, sess identity.Session, id string) error {
	if !sess.Caps.CanEditPurchasingFields {
		return ErrNotAllowed
	}

	prior, err := s.store.GetOne(ctx, id)
	if err != nil {
		return err
	}
	if prior.Archived {
		return ErrArchived
	}

	s.engine.SetPending()
	if err := s.store.Delete(ctx, id); err != nil {
		s.engine.ClearPending()
		return errors.Wrap(err, "failed to delete forecast")
	}

	s.count("forecasts_deleted")
	log.Info().Str("shipment_id", id).Msg("Forecast deleted")
	return nil
}

// ArchiveRegistered runs the archival sweep from the manual trigger. A zero
// count is a soft result, not an error; the caller decides how to present
// it.
func (s *Service) ArchiveRegistered(ctx context.Context, sess identity.Session) (int64, error) {
	if !sess.Caps.CanEditPurchasingFields {
		return 0, ErrNotAllowed
	}

	s.engine.SetPending()
	count, err := s.sweeper.Run(ctx)
	if err != nil {
		s.engine.ClearPending()
		return 0, err
	}
	if count == 0 {
		// Nothing changed, so no snapshot will arrive to clear the flag
		s.engine.ClearPending()
		return 0, nil
	}

	s.count("sweeps_triggered")
	return count, nil
}

func (s *Service) count(name string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(name)
	}
}

func nilIfEmpty(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeSupplierID(name string) string {
	return supplierIDSeparator.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}
