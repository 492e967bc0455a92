package mocks

import (
	"context"
	"stravachallenge/app/strava"
	"time"

	"github.com/stretchr/testify/mock"
)

type StravaService struct {
	mock.Mock
}

var _ strava.Strava = (*StravaService)(nil)

func (m *StravaService) Authorize(ctx context.Context, accessCode string) (*strava.AuthResp, error) {
	args := m.Called(ctx, accessCode)
	resp, _ := args.Get(0).(*strava.AuthResp)
	return resp, args.Error(1)
}

func (m *StravaService) RefreshAccessToken(ctx context.Context, refreshToken string) (*strava.AuthResp, error) {
	args := m.Called(ctx, refreshToken)
	resp, _ := args.Get(0).(*strava.AuthResp)
	return resp, args.Error(1)
}

func (m *StravaService) GetActivity(ctx context.Context, accessToken string, activityId int64) (*strava.Activity, error) {
	args := m.Called(ctx, accessToken, activityId)
	activity, _ := args.Get(0).(*strava.Activity)
	return activity, args.Error(1)
}

func (m *StravaService) GetAthleteActivities(ctx context.Context, accessToken string, page, pageSize int, after, before *time.Time) ([]strava.Activity, error) {
	args := m.Called(ctx, accessToken, page, pageSize, after, before)
	activities, _ := args.Get(0).([]strava.Activity)
	return activities, args.Error(1)
}

func (m *StravaService) Deauthorize(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}
