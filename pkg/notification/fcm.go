package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/repository"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// PushService delivers FCM notifications for new messages. A nil service is
// valid and drops every notification, so callers never branch on it.
type PushService struct {
	client  *messaging.Client
	devices repository.DeviceStore
	log     *zap.SugaredLogger
}

// NewPushService creates an FCM push service. Missing or broken credentials
// disable push rather than block startup.
func NewPushService(credentialsFile string, devices repository.DeviceStore, log *zap.SugaredLogger) (*PushService, error) {
	if credentialsFile == "" {
		log.Infow("firebase credentials not provided, push notifications disabled")
		return nil, nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Warnw("failed to initialize firebase app, push notifications disabled", "error", err)
		return nil, nil
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Warnw("failed to get messaging client, push notifications disabled", "error", err)
		return nil, nil
	}

	log.Infow("firebase fcm initialized")
	return &PushService{client: client, devices: devices, log: log}, nil
}

// NotifyMessage pushes a new-message notification to every registered device
// of the given users
func (s *PushService) NotifyMessage(ctx context.Context, userIDs []uuid.UUID, senderName string, msg *model.Message) error {
	if s == nil || s.client == nil || len(userIDs) == 0 {
		return nil
	}

	tokens, err := s.devices.TokensForUsers(ctx, userIDs)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	body := msg.Content
	if body == "" || msg.Deleted {
		body = "Sent an attachment"
	}

	multicast := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: senderName,
			Body:  body,
		},
		Data: map[string]string{
			"type":            "new_message",
			"conversation_id": msg.ConversationID.String(),
			"message_id":      msg.ID.String(),
			"sender_name":     senderName,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ClickAction: "FLUTTER_NOTIFICATION_CLICK",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	br, err := s.client.SendMulticast(ctx, multicast)
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if !resp.Success {
				s.log.Warnw("fcm delivery failure", "token", tokens[idx], "error", resp.Error)
			}
		}
	}

	return nil
}
