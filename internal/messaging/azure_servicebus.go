package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/notify"
)

// ServiceBus carries notification messages between the command side and the
// mail-sending worker. It implements notify.Publisher.
type ServiceBus struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewServiceBus creates a new Azure Service Bus client for the
// notification queue.
func NewServiceBus(cfg config.AzureConfig) (*ServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &ServiceBus{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
	}, nil
}

// Publish sends a notification message to the queue
func (s *ServiceBus) Publish(ctx context.Context, msg notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification message")
	}

	sbMsg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"action": string(msg.Action),
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return s.sender.SendMessage(ctx, sbMsg, nil)
}

// ProcessMessages receives notification messages until the context is
// cancelled. Messages are completed whether or not the handler succeeds;
// notification delivery is at-most-once by design.
func (s *ServiceBus) ProcessMessages(ctx context.Context, handler func(ctx context.Context, msg notify.Message) error) error {
	receiver, err := s.client.NewReceiverForQueue(s.queueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer receiver.Close(context.Background())

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, sbMsg := range messages {
			var msg notify.Message
			if err := json.Unmarshal(sbMsg.Body, &msg); err != nil {
				log.Error().Err(err).Msg("Discarding malformed notification message")
			} else if err := handler(ctx, msg); err != nil {
				log.Error().
					Err(err).
					Str("action", string(msg.Action)).
					Msg("Notification handler failed, dropping message")
			}

			if err := receiver.CompleteMessage(ctx, sbMsg, nil); err != nil {
				log.Warn().Err(err).Msg("Failed to complete Service Bus message")
			}
		}
	}
}

// Close closes the Service Bus client
func (s *ServiceBus) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if s.client != nil {
		return s.client.Close(context.Background())
	}
	return nil
}
