// Package notification hands user notifications to the notification service
// over a frame publisher.
package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/werachapchap/service-payments/service/models"
)

var ErrInvalidNotification = errors.New("notification needs a user and a known template")

// PublishFunc matches frame's Service.Publish.
type PublishFunc func(ctx context.Context, topic string, payload any) error

type Publisher struct {
	topic   string
	publish PublishFunc
}

func NewPublisher(topic string, publish PublishFunc) *Publisher {
	return &Publisher{topic: topic, publish: publish}
}

func knownTemplate(template string) bool {
	switch template {
	case models.TemplatePaymentSuccessful, models.TemplatePaymentFailed,
		models.TemplateWithdrawalCompleted, models.TemplateWithdrawalFailed:
		return true
	default:
		return false
	}
}

// Notify enqueues the notification; delivery is the notification service's job.
func (p *Publisher) Notify(ctx context.Context, notification *models.Notification) error {
	if notification == nil || notification.UserID == "" || !knownTemplate(notification.Template) {
		return ErrInvalidNotification
	}
	if notification.Context == nil {
		notification.Context = map[string]string{}
	}

	if err := p.publish(ctx, p.topic, notification); err != nil {
		return fmt.Errorf("publish %s to %s: %w", notification.Template, p.topic, err)
	}
	return nil
}
