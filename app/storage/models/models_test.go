package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func june() Challenge {
	return Challenge{
		Name:          "June",
		Start:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Measurement:   MeasurementDistance,
		ActivityTypes: []string{"Run", "Walk"},
	}
}

func activityAt(t time.Time, kind string) Activity {
	return Activity{ActivityDetails: ActivityDetails{Type: kind, StartDate: t}}
}

func TestChallengeCounts_HalfOpenWindow(t *testing.T) {
	c := june()
	assert.True(t, c.Counts(activityAt(c.Start, "Run")))
	assert.True(t, c.Counts(activityAt(c.End.Add(-time.Second), "Walk")))
	assert.False(t, c.Counts(activityAt(c.End, "Run")))
	assert.False(t, c.Counts(activityAt(c.Start.Add(-time.Second), "Run")))
	assert.False(t, c.Counts(activityAt(c.Start.Add(time.Hour), "Ride")))
}

func TestChallengeCounts_EmptyTypesAcceptsAll(t *testing.T) {
	c := june()
	c.ActivityTypes = nil
	assert.True(t, c.Counts(activityAt(c.Start.Add(time.Hour), "Ride")))
	assert.True(t, c.Counts(activityAt(c.Start.Add(time.Hour), "Swim")))
}

func TestChallengeValidate(t *testing.T) {
	require.NoError(t, june().Validate())

	reversed := june()
	reversed.End = reversed.Start
	assert.ErrorIs(t, reversed.Validate(), ErrInvalidChallenge)

	unknown := june()
	unknown.Measurement = "steps"
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidChallenge)
}

func TestChallengeHasParticipant(t *testing.T) {
	c := june()
	c.Athletes = []int64{3, 7}
	assert.True(t, c.HasParticipant(7))
	assert.False(t, c.HasParticipant(4))
}

func TestAthleteDisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", Athlete{FirstName: "Ann", LastName: "Lee", Username: "ann"}.DisplayName())
	assert.Equal(t, "Ann", Athlete{FirstName: "Ann"}.DisplayName())
	assert.Equal(t, "Lee", Athlete{LastName: "Lee"}.DisplayName())
	assert.Equal(t, "ann", Athlete{Username: "ann"}.DisplayName())
	assert.Equal(t, "anonymous", Athlete{}.DisplayName())
}

func TestAthleteTokenExpiresWithin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	later := now.Add(10 * time.Minute).Unix()
	soon := now.Add(30 * time.Second).Unix()

	assert.True(t, Athlete{}.TokenExpiresWithin(time.Minute, now))
	assert.True(t, Athlete{StravaAccessToken: "a"}.TokenExpiresWithin(time.Minute, now))
	assert.False(t, Athlete{StravaAccessToken: "a", TokenExpiresAt: &later}.TokenExpiresWithin(time.Minute, now))
	assert.True(t, Athlete{StravaAccessToken: "a", TokenExpiresAt: &soon}.TokenExpiresWithin(time.Minute, now))
}

func TestAthleteFollowingAndConnected(t *testing.T) {
	a := Athlete{Following: []int64{2, 5}, StravaRefreshToken: "r"}
	assert.True(t, a.IsFollowing(5))
	assert.False(t, a.IsFollowing(3))
	assert.True(t, a.Connected())
	assert.False(t, Athlete{}.Connected())
}

func TestAthleteJSON_HidesPrivateFields(t *testing.T) {
	chat := int64(555000111)
	expires := int64(1_700_000_000)
	a := Athlete{ID: 1, StravaId: 2, FirstName: "Ann", TelegramChatId: &chat,
		StravaAccessToken: "access", StravaRefreshToken: "refresh", TokenExpiresAt: &expires}

	b, err := json.Marshal(a)
	require.NoError(t, err)
	out := string(b)
	assert.NotContains(t, out, "telegram")
	assert.NotContains(t, out, "555000111")
	assert.NotContains(t, out, "access")
	assert.NotContains(t, out, "refresh")
	assert.Contains(t, out, `"firstname":"Ann"`)
}
