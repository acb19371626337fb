package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/config"
)

var subjects = map[Action]string{
	ActionCreated:    "Nueva previsión registrada",
	ActionArrived:    "Entrada de mercancía registrada",
	ActionRegistered: "Entrega dada de alta",
}

var actionDescriptions = map[Action]string{
	ActionCreated:    "Se ha registrado una nueva previsión de proveedor.",
	ActionArrived:    "El almacén ha marcado la llegada real.",
	ActionRegistered: "Almacén ha dado de alta la entrega y se ha notificado a Compras.",
}

// Mailer sends HTML mail through a SendGrid-style HTTP endpoint
type Mailer struct {
	endpoint string
	apiKey   string
	from     string
	fromName string
	replyTo  string
	client   *http.Client
}

// NewMailer creates a mailer from configuration
func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		fromName: cfg.FromName,
		replyTo:  cfg.ReplyTo,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Send delivers one HTML message to the given recipients
func (m *Mailer) Send(ctx context.Context, to []string, subject, html string) error {
	var recipients []sgAddress
	for _, address := range to {
		recipients = append(recipients, sgAddress{Email: address})
	}

	payload := sgMailPayload{
		Personalizations: []sgPersonalization{{To: recipients}},
		From:             sgAddress{Email: m.from, Name: m.fromName},
		Subject:          subject,
		Content:          []sgContent{{Type: "text/html", Value: html}},
	}
	if m.replyTo != "" {
		payload.ReplyTo = &sgAddress{Email: m.replyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal mail payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create mail request")
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "mail request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.Errorf("mail provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Dispatcher turns queued notification messages into outbound mail. It runs
// on the worker side of the queue.
type Dispatcher struct {
	mailer *Mailer
}

// NewDispatcher creates a dispatcher
func NewDispatcher(mailer *Mailer) *Dispatcher {
	return &Dispatcher{mailer: mailer}
}

// Dispatch resolves recipients for the message, renders the body and sends
// it. Returns the resolved recipient list.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) ([]string, error) {
	to := Recipients(msg.Action, msg.Payload.Island)
	html := buildHTML(msg.Action, msg.Payload)

	if err := d.mailer.Send(ctx, to, subjects[msg.Action], html); err != nil {
		return nil, errors.Wrap(err, "failed to send notification mail")
	}

	log.Info().
		Str("action", string(msg.Action)).
		Strs("delivered_to", to).
		Msg("Notification mail sent")
	return to, nil
}

func buildHTML(action Action, payload Payload) string {
	islandName := "Gran Canaria"
	if payload.Island == "TF" {
		islandName = "Tenerife"
	}

	var b strings.Builder
	b.WriteString(`<div style="font-family: 'Segoe UI', Arial, sans-serif; color: #111; line-height: 1.4;">`)
	fmt.Fprintf(&b, `<h2 style="color:#0b63ce;margin-bottom:4px;">%s</h2>`, subjects[action])
	fmt.Fprintf(&b, `<p style="margin-top:0;color:#555;">%s</p>`, actionDescriptions[action])
	b.WriteString(`<table style="width:100%;border-collapse:collapse;margin-top:16px;"><tbody>`)

	writeRow(&b, "Proveedor", payload.Supplier)
	writeRow(&b, "Fecha prevista", formatMailDate(&payload.ExpectedDate))
	writeRow(&b, "Estado actual", string(payload.Status))
	writeRow(&b, "Llegada real", formatMailDate(payload.Arrival))
	writeRow(&b, "Palets / Bultos", fmt.Sprintf("%s / %s", formatCount(payload.Pallets), formatCount(payload.Packages)))
	if payload.EstimatedPallets != nil || payload.EstimatedPackages != nil {
		writeRow(&b, "Estimación inicial",
			fmt.Sprintf("Palets: %s • Bultos: %s", formatCount(payload.EstimatedPallets), formatCount(payload.EstimatedPackages)))
	}
	if payload.TransportCompany != nil && *payload.TransportCompany != "" {
		writeRow(&b, "Empresa de transporte", *payload.TransportCompany)
	}
	writeRow(&b, "Isla", islandName)
	writeRow(&b, "Notas", formatText(payload.Notes))
	writeRow(&b, "Observaciones", formatText(payload.Observations))

	b.WriteString(`</tbody></table>`)
	updatedBy := payload.UpdatedBy
	if updatedBy == "" {
		updatedBy = "Usuario"
	}
	fmt.Fprintf(&b, `<p style="margin-top:16px;font-size:13px;color:#555;">Actualizado por: %s</p>`, updatedBy)
	b.WriteString(`</div>`)
	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b,
		`<tr><td style="padding:6px 8px;background:#f4f6fa;width:35%%;font-weight:600;">%s</td><td style="padding:6px 8px;">%s</td></tr>`,
		label, value)
}

func formatMailDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "—"
	}
	return t.Format("02/01/2006 15:04")
}

func formatCount(n *int) string {
	if n == nil {
		return "—"
	}
	return fmt.Sprintf("%d", *n)
}

func formatText(s *string) string {
	if s == nil || *s == "" {
		return "—"
	}
	return *s
}

// SendGrid v3 Mail Send API payload types.
type sgMailPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	ReplyTo          *sgAddress          `json:"reply_to,omitempty"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
