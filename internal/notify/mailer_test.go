package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/delivery"
)

func TestBuildHTMLRendersDeliveryFields(t *testing.T) {
	arrival := time.Date(2025, 4, 2, 11, 45, 0, 0, time.UTC)
	pallets := 4
	html := buildHTML(ActionArrived, Payload{
		Supplier:     "Frutas del Norte",
		ExpectedDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Status:       delivery.StatusInWarehouse,
		Arrival:      &arrival,
		Pallets:      &pallets,
		Island:       delivery.IslandTF,
		UpdatedBy:    "Marta",
	})

	require.Contains(t, html, "Frutas del Norte")
	require.Contains(t, html, "Tenerife")
	require.Contains(t, html, "02/04/2025 11:45")
	require.Contains(t, html, "Entrada de mercancía registrada")
	require.Contains(t, html, "Actualizado por: Marta")
	// Missing packages render as a dash, never as zero
	require.Contains(t, html, "4 / —")
}

func TestBuildHTMLDefaultsUpdatedBy(t *testing.T) {
	html := buildHTML(ActionCreated, Payload{Supplier: "Proveedor", Island: delivery.IslandGC})
	require.Contains(t, html, "Actualizado por: Usuario")
	require.Contains(t, html, "Gran Canaria")
}

func TestDispatcherSendsToResolvedRecipients(t *testing.T) {
	var captured sgMailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	mailer := NewMailer(config.MailConfig{
		Endpoint: server.URL,
		APIKey:   "test-key",
		From:     "no-reply@comercialav.com",
	})

	dispatcher := NewDispatcher(mailer)
	to, err := dispatcher.Dispatch(context.Background(), Message{
		Action:  ActionRegistered,
		Payload: Payload{Supplier: "Proveedor", Island: delivery.IslandGC},
	})

	require.NoError(t, err)
	require.Equal(t, []string{"compras@comercialav.com", "avisos.entradas.gc@comercialav.com"}, to)
	require.Equal(t, "Entrega dada de alta", captured.Subject)
	require.Len(t, captured.Personalizations, 1)
	require.Len(t, captured.Personalizations[0].To, 2)
}

func TestMailerReportsProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad payload"}]}`))
	}))
	defer server.Close()

	mailer := NewMailer(config.MailConfig{Endpoint: server.URL, APIKey: "k", From: "a@b.c"})
	err := mailer.Send(context.Background(), []string{"x@y.z"}, "subject", "<p>hi</p>")

	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "400"))
}
