// Package athlete connects Strava accounts, maintains the follow graph and
// publishes athlete changes.
package athlete

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"stravachallenge/app/feed"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/strava"
	"sync"
	"time"
)

const (
	DefaultImportWindow  = 30 * 24 * time.Hour
	initialImportTimeout = 10 * time.Minute
)

var ErrSelfFollow = errors.New("athlete cannot follow themselves")

type Store interface {
	GetAllAthletes(ctx context.Context) ([]*models.Athlete, error)
	GetAthleteById(ctx context.Context, id int64) (*models.Athlete, error)
	GetAthleteByStravaId(ctx context.Context, stravaId int64) (*models.Athlete, error)
	UpsertAthlete(ctx context.Context, athlete *models.Athlete) (bool, error)
	ClearAthleteTokens(ctx context.Context, id int64) error
	AddFollow(ctx context.Context, followerId, followeeId int64) error
	RemoveFollow(ctx context.Context, followerId, followeeId int64) error
}

type Provider interface {
	Authorize(ctx context.Context, accessCode string) (*strava.AuthResp, error)
	Deauthorize(ctx context.Context, accessToken string) error
}

type TokenSource interface {
	GetAccessToken(ctx context.Context, athleteId int64) (string, error)
}

// Activities is what the service needs from the activity service.
type Activities interface {
	Import(ctx context.Context, athleteId int64, after, before *time.Time) (int, error)
	RemoveAthleteActivities(ctx context.Context, athleteId int64) (int, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipientId int64, message string) error
}

type Service struct {
	store      Store
	provider   Provider
	tokens     TokenSource
	activities Activities
	notifier   Notifier
	bus        *feed.Bus[models.Athlete]

	importWindow time.Duration
	now          func() time.Time
	imports      sync.WaitGroup
}

func NewService(store Store, provider Provider, tokens TokenSource, activities Activities, notifier Notifier, bus *feed.Bus[models.Athlete]) *Service {
	return &Service{
		store:        store,
		provider:     provider,
		tokens:       tokens,
		activities:   activities,
		notifier:     notifier,
		bus:          bus,
		importWindow: DefaultImportWindow,
		now:          time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Athlete, error) {
	return s.store.GetAthleteById(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.Athlete, error) {
	return s.store.GetAllAthletes(ctx)
}

// Connect exchanges an OAuth code, stores the athlete and starts importing
// their recent activities in the background. chatId links a Telegram chat
// when set.
func (s *Service) Connect(ctx context.Context, code string, chatId *int64) (*models.Athlete, error) {
	auth, err := s.provider.Authorize(ctx, code)
	if err != nil {
		return nil, err
	}

	expiresAt := auth.ExpiresAt
	a := &models.Athlete{
		StravaId:           auth.Athlete.Id,
		Username:           auth.Athlete.Username,
		FirstName:          auth.Athlete.FirstName,
		LastName:           auth.Athlete.LastName,
		TelegramChatId:     chatId,
		StravaAccessToken:  auth.AccessToken,
		StravaRefreshToken: auth.RefreshToken,
		TokenExpiresAt:     &expiresAt,
	}
	created, err := s.store.UpsertAthlete(ctx, a)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.GetAthleteById(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if created {
		s.publish(feed.Created(*stored))
	} else {
		s.publish(feed.Updated(*stored))
	}
	slog.Info("athlete connected", "athleteId", stored.ID, "stravaId", stored.StravaId, "created", created)

	s.importInBackground(stored.ID)
	return stored, nil
}

func (s *Service) importInBackground(athleteId int64) {
	after := s.now().UTC().Add(-s.importWindow)
	s.imports.Add(1)
	go func() {
		defer s.imports.Done()
		ctx, cancel := context.WithTimeout(context.Background(), initialImportTimeout)
		defer cancel()
		if _, err := s.activities.Import(ctx, athleteId, &after, nil); err != nil {
			slog.Error("initial import failed", "athleteId", athleteId, "err", err)
		}
	}()
}

// Wait blocks until background imports started by Connect have finished.
func (s *Service) Wait() {
	s.imports.Wait()
}

// Follow adds the edge follower -> followee, publishes both athletes and
// notifies the followee.
func (s *Service) Follow(ctx context.Context, followerId, followeeId int64) error {
	follower, err := s.changeFollow(ctx, followerId, followeeId, s.store.AddFollow)
	if err != nil {
		return err
	}
	if s.notifier != nil {
		msg := fmt.Sprintf("%s started following you", follower.DisplayName())
		if err := s.notifier.Notify(ctx, followeeId, msg); err != nil {
			slog.Error("failed to notify followee", "athleteId", followeeId, "err", err)
		}
	}
	return nil
}

func (s *Service) Unfollow(ctx context.Context, followerId, followeeId int64) error {
	_, err := s.changeFollow(ctx, followerId, followeeId, s.store.RemoveFollow)
	return err
}

func (s *Service) changeFollow(ctx context.Context, followerId, followeeId int64, write func(context.Context, int64, int64) error) (*models.Athlete, error) {
	if followerId == followeeId {
		return nil, ErrSelfFollow
	}
	if _, err := s.store.GetAthleteById(ctx, followeeId); err != nil {
		return nil, err
	}
	if err := write(ctx, followerId, followeeId); err != nil {
		return nil, err
	}

	follower, err := s.store.GetAthleteById(ctx, followerId)
	if err != nil {
		return nil, err
	}
	followee, err := s.store.GetAthleteById(ctx, followeeId)
	if err != nil {
		return nil, err
	}
	s.publish(feed.Updated(*follower))
	s.publish(feed.Updated(*followee))
	return follower, nil
}

// Deauthorize handles a revoked authorization: tokens are cleared and the
// athlete's activities removed.
func (s *Service) Deauthorize(ctx context.Context, stravaId int64) error {
	a, err := s.store.GetAthleteByStravaId(ctx, stravaId)
	if err != nil {
		return err
	}
	return s.disconnect(ctx, a.ID)
}

// Disconnect revokes the athlete's Strava authorization and then cleans up
// as Deauthorize does. A failing revoke is logged and cleanup continues.
func (s *Service) Disconnect(ctx context.Context, athleteId int64) error {
	token, err := s.tokens.GetAccessToken(ctx, athleteId)
	if err != nil {
		slog.Warn("no usable token to revoke", "athleteId", athleteId, "err", err)
	} else if err := s.provider.Deauthorize(ctx, token); err != nil {
		slog.Warn("failed to revoke strava authorization", "athleteId", athleteId, "err", err)
	}
	return s.disconnect(ctx, athleteId)
}

func (s *Service) disconnect(ctx context.Context, athleteId int64) error {
	if err := s.store.ClearAthleteTokens(ctx, athleteId); err != nil {
		return err
	}
	removed, err := s.activities.RemoveAthleteActivities(ctx, athleteId)
	if err != nil {
		return err
	}
	a, err := s.store.GetAthleteById(ctx, athleteId)
	if err != nil {
		return err
	}
	s.publish(feed.Updated(*a))
	slog.Info("athlete disconnected", "athleteId", athleteId, "removedActivities", removed)
	return nil
}

// Feed streams every athlete change.
func (s *Service) Feed() *feed.Resilient[models.Athlete] {
	return feed.NewResilient[models.Athlete](s.bus, nil)
}

func (s *Service) publish(u feed.Update[models.Athlete]) {
	if err := s.bus.Publish(u); err != nil {
		slog.Warn("failed to publish athlete update", "athleteId", u.Item.ID, "action", u.Action.String(), "err", err)
	}
}
