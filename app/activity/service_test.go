package activity

import (
	"context"
	"errors"
	"stravachallenge/app/apperr"
	"stravachallenge/app/feed"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/strava"
	"stravachallenge/mocks"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) GetAccessToken(context.Context, int64) (string, error) {
	return s.token, s.err
}

var start = time.Date(2024, 4, 2, 7, 30, 0, 0, time.UTC)

func remoteRun(id int64, distance float64) strava.Activity {
	return strava.Activity{Id: id, Name: "Morning Run", Type: "Run", Distance: distance, MovingTime: 1800, StartDate: start}
}

type fixture struct {
	service  *Service
	store    *mocks.Store
	provider *mocks.StravaService
	sub      *feed.Subscription[models.Activity]
}

func newFixture(t *testing.T, tokens TokenSource) fixture {
	t.Helper()
	store := &mocks.Store{}
	provider := &mocks.StravaService{}
	bus := feed.NewBus[models.Activity]("activities-" + t.Name())
	sub, err := bus.Subscribe(nil)
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return fixture{
		service:  NewService(store, provider, tokens, bus).WithPaging(2, 0),
		store:    store,
		provider: provider,
		sub:      sub,
	}
}

func (f fixture) next(t *testing.T) feed.Update[models.Activity] {
	t.Helper()
	select {
	case u := <-f.sub.C():
		return u
	case <-time.After(time.Second):
		t.Fatal("no activity update published")
	}
	return feed.Update[models.Activity]{}
}

func (f fixture) quiet(t *testing.T) {
	t.Helper()
	select {
	case u := <-f.sub.C():
		t.Fatalf("unexpected activity update %+v", u)
	default:
	}
}

func TestSyncActivity_NewActivityIsCreated(t *testing.T) {
	f := newFixture(t, staticTokens{token: "tok"})
	run := remoteRun(900, 5000)
	f.store.On("GetAthleteByStravaId", mock.Anything, int64(77)).Return(&models.Athlete{ID: 1, StravaId: 77}, nil)
	f.provider.On("GetActivity", mock.Anything, "tok", int64(900)).Return(&run, nil)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(1), int64(900)).Return(nil, apperr.NotFound("activity", 900))
	f.store.On("AddActivity", mock.Anything, mock.MatchedBy(func(a *models.Activity) bool {
		return a.AthleteID == 1 && a.StravaId == 900 && a.Distance == 5000 && a.Type == "Run"
	})).Run(func(args mock.Arguments) { args.Get(1).(*models.Activity).ID = 31 }).Return(nil)

	stored, err := f.service.SyncActivity(context.Background(), 77, 900)
	require.NoError(t, err)
	assert.Equal(t, int64(31), stored.ID)

	u := f.next(t)
	assert.Equal(t, feed.ActionCreate, u.Action)
	assert.Equal(t, int64(31), u.Item.ID)
	f.store.AssertExpectations(t)
}

func TestSyncActivity_ExistingActivityIsUpdated(t *testing.T) {
	f := newFixture(t, staticTokens{token: "tok"})
	run := remoteRun(900, 6000)
	f.store.On("GetAthleteByStravaId", mock.Anything, int64(77)).Return(&models.Athlete{ID: 1, StravaId: 77}, nil)
	f.provider.On("GetActivity", mock.Anything, "tok", int64(900)).Return(&run, nil)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(1), int64(900)).Return(&models.Activity{ID: 31, AthleteID: 1, StravaId: 900}, nil)
	f.store.On("UpdateActivity", mock.Anything, mock.MatchedBy(func(a *models.Activity) bool {
		return a.ID == 31 && a.Distance == 6000
	})).Return(nil)

	_, err := f.service.SyncActivity(context.Background(), 77, 900)
	require.NoError(t, err)
	assert.Equal(t, feed.ActionUpdate, f.next(t).Action)
	f.store.AssertNotCalled(t, "AddActivity", mock.Anything, mock.Anything)
}

func TestSyncActivity_TokenFailureStopsBeforeProvider(t *testing.T) {
	authErr := &apperr.UpstreamAuthError{AthleteId: 1, Err: errors.New("invalid_grant")}
	f := newFixture(t, staticTokens{err: authErr})
	f.store.On("GetAthleteByStravaId", mock.Anything, int64(77)).Return(&models.Athlete{ID: 1, StravaId: 77}, nil)

	_, err := f.service.SyncActivity(context.Background(), 77, 900)
	assert.True(t, apperr.IsUpstreamAuth(err))
	f.provider.AssertNotCalled(t, "GetActivity", mock.Anything, mock.Anything, mock.Anything)
	f.quiet(t)
}

func TestSyncActivity_FailedWriteDoesNotPublish(t *testing.T) {
	f := newFixture(t, staticTokens{token: "tok"})
	run := remoteRun(900, 5000)
	f.store.On("GetAthleteByStravaId", mock.Anything, int64(77)).Return(&models.Athlete{ID: 1}, nil)
	f.provider.On("GetActivity", mock.Anything, "tok", int64(900)).Return(&run, nil)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(1), int64(900)).Return(nil, apperr.NotFound("activity", 900))
	f.store.On("AddActivity", mock.Anything, mock.Anything).Return(apperr.Storage("add activity", errors.New("constraint")))

	_, err := f.service.SyncActivity(context.Background(), 77, 900)
	assert.True(t, apperr.IsStorage(err))
	f.quiet(t)
}

func TestRemoveActivity_PublishesDeleteSnapshot(t *testing.T) {
	f := newFixture(t, staticTokens{})
	stored := &models.Activity{ID: 31, AthleteID: 1, StravaId: 900, Name: "Morning Run"}
	f.store.On("GetAthleteByStravaId", mock.Anything, int64(77)).Return(&models.Athlete{ID: 1}, nil)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(1), int64(900)).Return(stored, nil)
	f.store.On("RemoveActivity", mock.Anything, int64(31)).Return(nil)

	require.NoError(t, f.service.RemoveActivity(context.Background(), 77, 900))
	u := f.next(t)
	assert.Equal(t, feed.ActionDelete, u.Action)
	assert.Equal(t, *stored, u.Item)
}

func TestRemoveActivity_UnknownActivity(t *testing.T) {
	f := newFixture(t, staticTokens{})
	f.store.On("GetAthleteByStravaId", mock.Anything, int64(77)).Return(&models.Athlete{ID: 1}, nil)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(1), int64(900)).Return(nil, apperr.NotFound("activity", 900))

	err := f.service.RemoveActivity(context.Background(), 77, 900)
	assert.True(t, apperr.IsNotFound(err))
	f.quiet(t)
}

func TestRemoveAthleteActivities(t *testing.T) {
	f := newFixture(t, staticTokens{})
	f.store.On("GetActivities", mock.Anything, models.ActivityFilter{AthleteIds: []int64{1}}).
		Return([]models.Activity{{ID: 3, AthleteID: 1}, {ID: 4, AthleteID: 1}}, nil)
	f.store.On("RemoveActivity", mock.Anything, int64(3)).Return(nil)
	f.store.On("RemoveActivity", mock.Anything, int64(4)).Return(nil)

	n, err := f.service.RemoveAthleteActivities(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(3), f.next(t).Item.ID)
	assert.Equal(t, int64(4), f.next(t).Item.ID)
}

func TestImport_PagesUntilShortPage(t *testing.T) {
	f := newFixture(t, staticTokens{token: "tok"})
	after := start.Add(-24 * time.Hour)
	f.provider.On("GetAthleteActivities", mock.Anything, "tok", 1, 2, &after, (*time.Time)(nil)).
		Return([]strava.Activity{remoteRun(1, 1000), remoteRun(2, 2000)}, nil)
	f.provider.On("GetAthleteActivities", mock.Anything, "tok", 2, 2, &after, (*time.Time)(nil)).
		Return([]strava.Activity{remoteRun(3, 3000)}, nil)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(5), mock.Anything).Return(nil, apperr.NotFound("activity", 0))
	f.store.On("AddActivity", mock.Anything, mock.Anything).Return(nil)

	n, err := f.service.Import(context.Background(), 5, &after, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for i := 0; i < 3; i++ {
		assert.Equal(t, feed.ActionCreate, f.next(t).Action)
	}
	f.provider.AssertNumberOfCalls(t, "GetAthleteActivities", 2)
}

func TestImport_ProviderFailureKeepsImportedRows(t *testing.T) {
	f := newFixture(t, staticTokens{token: "tok"})
	f.provider.On("GetAthleteActivities", mock.Anything, "tok", 1, 2, mock.Anything, mock.Anything).
		Return([]strava.Activity{remoteRun(1, 1000), remoteRun(2, 2000)}, nil)
	f.provider.On("GetAthleteActivities", mock.Anything, "tok", 2, 2, mock.Anything, mock.Anything).
		Return(nil, strava.ErrUnauthorized)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(5), mock.Anything).Return(nil, apperr.NotFound("activity", 0))
	f.store.On("AddActivity", mock.Anything, mock.Anything).Return(nil)

	n, err := f.service.Import(context.Background(), 5, nil, nil)
	assert.ErrorIs(t, err, strava.ErrUnauthorized)
	assert.Equal(t, 2, n)
	f.store.AssertNotCalled(t, "RemoveActivity", mock.Anything, mock.Anything)
}

func TestImport_StopsOnCancellation(t *testing.T) {
	f := newFixture(t, staticTokens{token: "tok"})
	f.service.WithPaging(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	f.provider.On("GetAthleteActivities", mock.Anything, "tok", 1, 1, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return([]strava.Activity{remoteRun(1, 1000)}, nil)
	f.store.On("GetActivityByStravaId", mock.Anything, int64(5), int64(1)).Return(nil, apperr.NotFound("activity", 1))
	f.store.On("AddActivity", mock.Anything, mock.Anything).Return(nil)

	n, err := f.service.Import(ctx, 5, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	f.provider.AssertNumberOfCalls(t, "GetAthleteActivities", 1)
}

func TestFeed_FollowedAthletesOnly(t *testing.T) {
	f := newFixture(t, staticTokens{})
	f.store.On("GetFollowing", mock.Anything, int64(1)).Return([]int64{2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan models.Activity, 8)
	stream := f.service.Feed(1)
	go stream.Run(ctx, func(_ context.Context, u feed.Update[models.Activity]) error {
		got <- u.Item
		return nil
	})
	require.Eventually(t, func() bool { return stream.Subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	for _, owner := range []int64{3, 2, 1} {
		f.service.publish(feed.Created(models.Activity{ID: owner * 10, AthleteID: owner}))
	}

	var owners []int64
	for len(owners) < 2 {
		select {
		case a := <-got:
			owners = append(owners, a.AthleteID)
		case <-time.After(time.Second):
			t.Fatal("feed did not deliver")
		}
	}
	assert.Equal(t, []int64{2, 1}, owners)
	assert.Empty(t, got)
}
