package models

import (
	"time"
)

type Athlete struct {
	ID                 int64   `json:"id,omitempty"`
	StravaId           int64   `json:"strava_id"`
	Username           string  `json:"username"`
	FirstName          string  `json:"firstname"`
	LastName           string  `json:"lastname"`
	TelegramChatId     *int64  `json:"-"`
	StravaRefreshToken string  `json:"-"`
	StravaAccessToken  string  `json:"-"`
	TokenExpiresAt     *int64  `json:"-"`
	Following          []int64 `json:"following"`
	Followers          []int64 `json:"followers"`
}

// DisplayName is what scoreboards and notifications show for the athlete.
func (a Athlete) DisplayName() string {
	name := a.FirstName
	if a.LastName != "" {
		if name != "" {
			name += " "
		}
		name += a.LastName
	}
	if name == "" {
		name = a.Username
	}
	if name == "" {
		name = "anonymous"
	}
	return name
}

// Connected reports whether the athlete still holds provider credentials.
func (a Athlete) Connected() bool {
	return a.StravaRefreshToken != ""
}

// TokenExpiresWithin reports whether the access token is missing or expires
// within skew of now.
func (a Athlete) TokenExpiresWithin(skew time.Duration, now time.Time) bool {
	if a.StravaAccessToken == "" || a.TokenExpiresAt == nil {
		return true
	}
	return time.Unix(*a.TokenExpiresAt, 0).Sub(now) < skew
}

// IsFollowing reports whether other is in the athlete's following set.
func (a Athlete) IsFollowing(other int64) bool {
	for _, id := range a.Following {
		if id == other {
			return true
		}
	}
	return false
}
