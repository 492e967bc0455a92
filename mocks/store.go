// Package mocks holds testify doubles for the repository, provider and bot.
package mocks

import (
	"context"
	"stravachallenge/app/storage"
	"stravachallenge/app/storage/models"

	"github.com/stretchr/testify/mock"
)

type Store struct {
	mock.Mock
}

var _ storage.Store = (*Store)(nil)

func (m *Store) Connect() error {
	return m.Called().Error(0)
}

func (m *Store) GetAllAthletes(ctx context.Context) ([]*models.Athlete, error) {
	args := m.Called(ctx)
	athletes, _ := args.Get(0).([]*models.Athlete)
	return athletes, args.Error(1)
}

func (m *Store) GetAthleteById(ctx context.Context, id int64) (*models.Athlete, error) {
	args := m.Called(ctx, id)
	if fn, ok := args.Get(0).(func(int64) *models.Athlete); ok {
		return fn(id), args.Error(1)
	}
	athlete, _ := args.Get(0).(*models.Athlete)
	return athlete, args.Error(1)
}

func (m *Store) GetAthleteByStravaId(ctx context.Context, stravaId int64) (*models.Athlete, error) {
	args := m.Called(ctx, stravaId)
	athlete, _ := args.Get(0).(*models.Athlete)
	return athlete, args.Error(1)
}

func (m *Store) UpsertAthlete(ctx context.Context, athlete *models.Athlete) (bool, error) {
	args := m.Called(ctx, athlete)
	return args.Bool(0), args.Error(1)
}

func (m *Store) UpdateAthleteTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt int64) error {
	return m.Called(ctx, id, accessToken, refreshToken, expiresAt).Error(0)
}

func (m *Store) ClearAthleteTokens(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *Store) GetFollowing(ctx context.Context, id int64) ([]int64, error) {
	args := m.Called(ctx, id)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *Store) GetFollowers(ctx context.Context, id int64) ([]int64, error) {
	args := m.Called(ctx, id)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *Store) AddFollow(ctx context.Context, followerId, followeeId int64) error {
	return m.Called(ctx, followerId, followeeId).Error(0)
}

func (m *Store) RemoveFollow(ctx context.Context, followerId, followeeId int64) error {
	return m.Called(ctx, followerId, followeeId).Error(0)
}

func (m *Store) GetActivityById(ctx context.Context, id int64) (*models.Activity, error) {
	args := m.Called(ctx, id)
	activity, _ := args.Get(0).(*models.Activity)
	return activity, args.Error(1)
}

func (m *Store) GetActivityByStravaId(ctx context.Context, athleteId, stravaId int64) (*models.Activity, error) {
	args := m.Called(ctx, athleteId, stravaId)
	activity, _ := args.Get(0).(*models.Activity)
	return activity, args.Error(1)
}

func (m *Store) GetActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error) {
	args := m.Called(ctx, filter)
	activities, _ := args.Get(0).([]models.Activity)
	return activities, args.Error(1)
}

func (m *Store) AddActivity(ctx context.Context, activity *models.Activity) error {
	return m.Called(ctx, activity).Error(0)
}

func (m *Store) UpdateActivity(ctx context.Context, activity *models.Activity) error {
	return m.Called(ctx, activity).Error(0)
}

func (m *Store) RemoveActivity(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *Store) GetChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	args := m.Called(ctx, id)
	challenge, _ := args.Get(0).(*models.Challenge)
	return challenge, args.Error(1)
}

func (m *Store) GetChallenges(ctx context.Context) ([]*models.Challenge, error) {
	args := m.Called(ctx)
	challenges, _ := args.Get(0).([]*models.Challenge)
	return challenges, args.Error(1)
}

func (m *Store) CreateChallenge(ctx context.Context, challenge *models.Challenge) error {
	return m.Called(ctx, challenge).Error(0)
}

func (m *Store) UpdateChallenge(ctx context.Context, challenge *models.Challenge) error {
	return m.Called(ctx, challenge).Error(0)
}

func (m *Store) DeleteChallenge(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *Store) AddParticipant(ctx context.Context, challengeId, athleteId int64) error {
	return m.Called(ctx, challengeId, athleteId).Error(0)
}

func (m *Store) RemoveParticipant(ctx context.Context, challengeId, athleteId int64) error {
	return m.Called(ctx, challengeId, athleteId).Error(0)
}

func (m *Store) SetChallengeWinner(ctx context.Context, challengeId int64, winnerId *int64) error {
	return m.Called(ctx, challengeId, winnerId).Error(0)
}

func (m *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *Store) GetNotifications(ctx context.Context, recipientId int64, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, recipientId, limit)
	notifications, _ := args.Get(0).([]models.Notification)
	return notifications, args.Error(1)
}
