// Package activity keeps stored activities in step with Strava and streams
// changes to the athlete and the people who follow them.
package activity

import (
	"context"
	"log/slog"
	"stravachallenge/app/apperr"
	"stravachallenge/app/feed"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/strava"
	"time"
)

const (
	DefaultPageSize  = 50
	DefaultPageDelay = 2 * time.Second
)

type Store interface {
	GetAthleteByStravaId(ctx context.Context, stravaId int64) (*models.Athlete, error)
	GetFollowing(ctx context.Context, id int64) ([]int64, error)

	GetActivityByStravaId(ctx context.Context, athleteId, stravaId int64) (*models.Activity, error)
	GetActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)
	AddActivity(ctx context.Context, activity *models.Activity) error
	UpdateActivity(ctx context.Context, activity *models.Activity) error
	RemoveActivity(ctx context.Context, id int64) error
}

type Provider interface {
	GetActivity(ctx context.Context, accessToken string, activityId int64) (*strava.Activity, error)
	GetAthleteActivities(ctx context.Context, accessToken string, page, pageSize int, after, before *time.Time) ([]strava.Activity, error)
}

// TokenSource hands out a valid access token for an athlete.
type TokenSource interface {
	GetAccessToken(ctx context.Context, athleteId int64) (string, error)
}

type Service struct {
	store     Store
	provider  Provider
	tokens    TokenSource
	bus       *feed.Bus[models.Activity]
	pageSize  int
	pageDelay time.Duration
}

func NewService(store Store, provider Provider, tokens TokenSource, bus *feed.Bus[models.Activity]) *Service {
	return &Service{
		store:     store,
		provider:  provider,
		tokens:    tokens,
		bus:       bus,
		pageSize:  DefaultPageSize,
		pageDelay: DefaultPageDelay,
	}
}

// WithPaging sets the import page size and the pause between pages.
// A non-positive page size or a negative delay keeps the default.
func (s *Service) WithPaging(pageSize int, delay time.Duration) *Service {
	if pageSize > 0 {
		s.pageSize = pageSize
	}
	if delay >= 0 {
		s.pageDelay = delay
	}
	return s
}

// SyncActivity fetches one activity from Strava and stores it, publishing
// Create for a new row and Update for an existing one. It serves both the
// create and the update webhook events.
func (s *Service) SyncActivity(ctx context.Context, ownerStravaId, activityStravaId int64) (*models.Activity, error) {
	athlete, err := s.store.GetAthleteByStravaId(ctx, ownerStravaId)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.GetAccessToken(ctx, athlete.ID)
	if err != nil {
		return nil, err
	}
	remote, err := s.provider.GetActivity(ctx, token, activityStravaId)
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, remote.ToModel(athlete.ID))
}

// RemoveActivity deletes a stored activity and publishes its last snapshot.
func (s *Service) RemoveActivity(ctx context.Context, ownerStravaId, activityStravaId int64) error {
	athlete, err := s.store.GetAthleteByStravaId(ctx, ownerStravaId)
	if err != nil {
		return err
	}
	existing, err := s.store.GetActivityByStravaId(ctx, athlete.ID, activityStravaId)
	if err != nil {
		return err
	}
	return s.remove(ctx, *existing)
}

// RemoveAthleteActivities deletes every activity of the athlete, publishing
// Delete for each. It returns how many were removed before any error.
func (s *Service) RemoveAthleteActivities(ctx context.Context, athleteId int64) (int, error) {
	activities, err := s.store.GetActivities(ctx, models.ActivityFilter{AthleteIds: []int64{athleteId}})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range activities {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.remove(ctx, a); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Import pages through the athlete's Strava activities between after and
// before and stores each one. It pauses between pages and stops at the
// first short page. The count of activities stored so far is returned
// together with any error; stored rows are kept on failure.
func (s *Service) Import(ctx context.Context, athleteId int64, after, before *time.Time) (int, error) {
	token, err := s.tokens.GetAccessToken(ctx, athleteId)
	if err != nil {
		return 0, err
	}

	imported := 0
	for page := 1; ; page++ {
		batch, err := s.provider.GetAthleteActivities(ctx, token, page, s.pageSize, after, before)
		if err != nil {
			return imported, err
		}
		for _, remote := range batch {
			if err := ctx.Err(); err != nil {
				return imported, err
			}
			if _, err := s.upsert(ctx, remote.ToModel(athleteId)); err != nil {
				return imported, err
			}
			imported++
		}
		if len(batch) < s.pageSize {
			break
		}

		select {
		case <-ctx.Done():
			return imported, ctx.Err()
		case <-time.After(s.pageDelay):
		}
	}
	slog.Info("imported activities", "athleteId", athleteId, "count", imported)
	return imported, nil
}

// Feed streams activities of the athlete and of everyone they follow. The
// follow set is read on every (re)subscribe.
func (s *Service) Feed(athleteId int64) *feed.Resilient[models.Activity] {
	return feed.NewResilient(s.bus, func(ctx context.Context) (feed.Predicate[models.Activity], error) {
		following, err := s.store.GetFollowing(ctx, athleteId)
		if err != nil {
			return nil, err
		}
		visible := make(map[int64]struct{}, len(following)+1)
		visible[athleteId] = struct{}{}
		for _, id := range following {
			visible[id] = struct{}{}
		}
		return func(a models.Activity) bool {
			_, ok := visible[a.AthleteID]
			return ok
		}, nil
	})
}

func (s *Service) upsert(ctx context.Context, a models.Activity) (*models.Activity, error) {
	existing, err := s.store.GetActivityByStravaId(ctx, a.AthleteID, a.StravaId)
	switch {
	case err == nil:
		a.ID = existing.ID
		if err := s.store.UpdateActivity(ctx, &a); err != nil {
			return nil, err
		}
		s.publish(feed.Updated(a))
	case apperr.IsNotFound(err):
		if err := s.store.AddActivity(ctx, &a); err != nil {
			return nil, err
		}
		s.publish(feed.Created(a))
	default:
		return nil, err
	}
	return &a, nil
}

func (s *Service) remove(ctx context.Context, a models.Activity) error {
	if err := s.store.RemoveActivity(ctx, a.ID); err != nil {
		return err
	}
	s.publish(feed.Deleted(a))
	return nil
}

func (s *Service) publish(u feed.Update[models.Activity]) {
	if err := s.bus.Publish(u); err != nil {
		slog.Warn("failed to publish activity update", "activityId", u.Item.ID, "action", u.Action.String(), "err", err)
	}
}
