// Package notify derives email notifications from delivery transitions and
// hands them across a message-passing boundary. Delivery is advisory and
// at-most-once: failures are logged and swallowed, never surfaced, and never
// block or roll back the mutation that triggered them.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/internal/delivery"
)

// Action identifies a notifiable lifecycle event
type Action string

const (
	ActionCreated    Action = "SHIPMENT_CREATED"
	ActionArrived    Action = "SHIPMENT_ARRIVED"
	ActionRegistered Action = "SHIPMENT_REGISTERED"
)

// Payload carries the delivery fields rendered into the email body
type Payload struct {
	Supplier          string              `json:"supplier"`
	ExpectedDate      time.Time           `json:"expectedDate"`
	Status            delivery.Status     `json:"status"`
	Arrival           *time.Time          `json:"arrival,omitempty"`
	Pallets           *int                `json:"pallets,omitempty"`
	Packages          *int                `json:"packages,omitempty"`
	EstimatedPallets  *int                `json:"estimatedPallets,omitempty"`
	EstimatedPackages *int                `json:"estimatedPackages,omitempty"`
	TransportCompany  *string             `json:"transportCompany,omitempty"`
	Notes             *string             `json:"notes,omitempty"`
	Tracking          *string             `json:"tracking,omitempty"`
	Observations      *string             `json:"observations,omitempty"`
	UpdatedBy         string              `json:"updatedBy,omitempty"`
	Island            delivery.IslandCode `json:"island"`
}

// Message is what crosses the queue between the command side and the mail
// sender.
type Message struct {
	Action  Action  `json:"action"`
	Payload Payload `json:"payload"`
}

// Publisher pushes a message onto the notification queue
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PayloadFrom builds the notification payload from a delivery view
func PayloadFrom(d delivery.Delivery, updatedBy string) Payload {
	return Payload{
		Supplier:          d.Supplier,
		ExpectedDate:      d.ExpectedDate,
		Status:            d.Status,
		Arrival:           d.Arrival,
		Pallets:           d.Pallets,
		Packages:          d.Packages,
		EstimatedPallets:  d.EstimatedPallets,
		EstimatedPackages: d.EstimatedPackages,
		TransportCompany:  d.TransportCompany,
		Notes:             d.Notes,
		Tracking:          d.Tracking,
		Observations:      d.Observations,
		UpdatedBy:         updatedBy,
		Island:            d.Island,
	}
}

// ActionForTransition maps a status diff to a notifiable action. The diff is
// a plain inequality: an update that leaves the status untouched never
// notifies, and a (theoretical) move to IN_TRANSIT has no action either.
func ActionForTransition(prev, next delivery.Status) (Action, bool) {
	if prev == next {
		return "", false
	}
	switch next {
	case delivery.StatusInWarehouse:
		return ActionArrived, true
	case delivery.StatusRegistered:
		return ActionRegistered, true
	}
	return "", false
}

// Fixed recipient table keyed by (action, island)
var (
	warehouseEmails = map[delivery.IslandCode]string{
		delivery.IslandGC: "almacen.gc@comercialav.com",
		delivery.IslandTF: "almacen.tf@comercialav.com",
	}
	entryNoticeEmails = map[delivery.IslandCode]string{
		delivery.IslandGC: "avisos.entradas.gc@comercialav.com",
		delivery.IslandTF: "avisos.entradas.tf@comercialav.com",
	}
)

const (
	purchasingEmail        = "compras@comercialav.com"
	fallbackWarehouseEmail = "almacen@comercialav.com"
)

// Recipients resolves the recipient list for an action and region
func Recipients(action Action, island delivery.IslandCode) []string {
	switch action {
	case ActionCreated:
		if email, ok := warehouseEmails[island]; ok {
			return []string{email}
		}
		return []string{fallbackWarehouseEmail}
	case ActionArrived:
		return []string{purchasingEmail}
	case ActionRegistered:
		recipients := []string{purchasingEmail}
		if email, ok := entryNoticeEmails[island]; ok {
			recipients = append(recipients, email)
		}
		return recipients
	default:
		return []string{purchasingEmail}
	}
}

// Notifier publishes notification messages, fire-and-forget
type Notifier struct {
	publisher Publisher
}

// NewNotifier creates a notifier. A nil publisher disables dispatch
// entirely; Notify becomes a logged no-op.
func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// Notify publishes one notification. Errors are terminal here: logged and
// dropped, so the caller's mutation is never affected.
func (n *Notifier) Notify(ctx context.Context, action Action, payload Payload) {
	if n == nil || n.publisher == nil {
		log.Debug().Str("action", string(action)).Msg("Notifications disabled, skipping")
		return
	}

	if err := n.publisher.Publish(ctx, Message{Action: action, Payload: payload}); err != nil {
		log.Error().
			Err(err).
			Str("action", string(action)).
			Str("supplier", payload.Supplier).
			Msg("Unable to publish notification")
		return
	}

	log.Info().
		Str("action", string(action)).
		Str("supplier", payload.Supplier).
		Str("island", string(payload.Island)).
		Msg("Notification published")
}
