// Package notification stores athlete notifications, streams them on the
// notification feed and forwards them to Telegram when the athlete linked a
// chat.
package notification

import (
	"context"
	"log/slog"
	"stravachallenge/app/feed"
	"stravachallenge/app/storage/models"
	"time"
)

const defaultListLimit = 50

type Store interface {
	GetAthleteById(ctx context.Context, id int64) (*models.Athlete, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotifications(ctx context.Context, recipientId int64, limit int) ([]models.Notification, error)
}

// Sender pushes a message to an external channel.
type Sender interface {
	Deliver(ctx context.Context, athlete models.Athlete, message string) error
}

type Service struct {
	store  Store
	bus    *feed.Bus[models.Notification]
	sender Sender
	now    func() time.Time
}

// NewService builds the service. sender may be nil.
func NewService(store Store, bus *feed.Bus[models.Notification], sender Sender) *Service {
	return &Service{store: store, bus: bus, sender: sender, now: time.Now}
}

// Notify stores a notification for the recipient, publishes it and hands it
// to the sender. Delivery failures are logged only.
func (s *Service) Notify(ctx context.Context, recipientId int64, message string) error {
	n := models.Notification{RecipientId: recipientId, Message: message, CreatedAt: s.now().UTC()}
	if err := s.store.CreateNotification(ctx, &n); err != nil {
		return err
	}
	if err := s.bus.Publish(feed.Created(n)); err != nil {
		slog.Warn("failed to publish notification", "recipientId", recipientId, "err", err)
	}

	if s.sender == nil {
		return nil
	}
	athlete, err := s.store.GetAthleteById(ctx, recipientId)
	if err != nil {
		slog.Error("failed to load notification recipient", "recipientId", recipientId, "err", err)
		return nil
	}
	if err := s.sender.Deliver(ctx, *athlete, message); err != nil {
		slog.Error("failed to deliver notification", "recipientId", recipientId, "err", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, recipientId int64, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.GetNotifications(ctx, recipientId, limit)
}

// Feed streams notifications addressed to recipientId.
func (s *Service) Feed(recipientId int64) *feed.Resilient[models.Notification] {
	return feed.NewResilient(s.bus, func(context.Context) (feed.Predicate[models.Notification], error) {
		return func(n models.Notification) bool { return n.RecipientId == recipientId }, nil
	})
}
