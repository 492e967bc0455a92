// Package token keeps athletes' provider access tokens fresh.
package token

import (
	"context"
	"errors"
	"log/slog"
	"stravachallenge/app/apperr"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/strava"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshSkew = time.Minute
	refreshTimeout     = 15 * time.Second
)

var ErrNotConnected = errors.New("athlete has no refresh token")

type AthleteStore interface {
	GetAthleteById(ctx context.Context, id int64) (*models.Athlete, error)
	UpdateAthleteTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt int64) error
}

type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*strava.AuthResp, error)
}

// Cache hands out access tokens, refreshing them through the provider when
// they expire within the skew window. Refreshes for one athlete are
// coalesced: concurrent callers share a single in-flight exchange, so a
// provider that invalidates refresh tokens on use never sees the old token
// twice.
type Cache struct {
	store    AthleteStore
	provider Refresher
	skew     time.Duration
	now      func() time.Time
	group    singleflight.Group
}

func NewCache(store AthleteStore, provider Refresher, skew time.Duration) *Cache {
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	return &Cache{store: store, provider: provider, skew: skew, now: time.Now}
}

// GetAccessToken returns a usable access token for the athlete.
func (c *Cache) GetAccessToken(ctx context.Context, athleteId int64) (string, error) {
	athlete, err := c.store.GetAthleteById(ctx, athleteId)
	if err != nil {
		return "", err
	}
	if !athlete.TokenExpiresWithin(c.skew, c.now()) {
		return athlete.StravaAccessToken, nil
	}

	ch := c.group.DoChan(strconv.FormatInt(athleteId, 10), func() (any, error) {
		// detached so one caller's cancellation does not fail the others sharing the flight
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.refresh(rctx, athleteId)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			slog.Debug("shared token refresh", "athleteId", athleteId)
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) refresh(ctx context.Context, athleteId int64) (string, error) {
	// a flight that finished just before this one began may already have stored a fresh token
	athlete, err := c.store.GetAthleteById(ctx, athleteId)
	if err != nil {
		return "", err
	}
	if !athlete.TokenExpiresWithin(c.skew, c.now()) {
		return athlete.StravaAccessToken, nil
	}
	if athlete.StravaRefreshToken == "" {
		return "", &apperr.UpstreamAuthError{AthleteId: athleteId, Err: ErrNotConnected}
	}

	resp, err := c.provider.RefreshAccessToken(ctx, athlete.StravaRefreshToken)
	if err != nil {
		slog.Error("error while refreshing access token", "athleteId", athleteId, "err", err)
		return "", &apperr.UpstreamAuthError{AthleteId: athleteId, Err: err}
	}
	if resp.AccessToken == "" {
		return "", &apperr.UpstreamAuthError{AthleteId: athleteId, Err: errors.New("empty access token in refresh response")}
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = athlete.StravaRefreshToken
	}
	if err := c.store.UpdateAthleteTokens(ctx, athleteId, resp.AccessToken, refreshToken, resp.ExpiresAt); err != nil {
		slog.Error("error while persisting refreshed token", "athleteId", athleteId, "err", err)
		return "", err
	}
	slog.Info("access token refreshed", "athleteId", athleteId, "expiresAt", resp.ExpiresAt)
	return resp.AccessToken, nil
}
