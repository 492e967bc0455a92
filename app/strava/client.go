package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/utils"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	ClientId     string
	ClientSecret string
}

type AuthResp struct {
	RefreshToken string      `json:"refresh_token"`
	AccessToken  string      `json:"access_token"`
	Athlete      AthleteInfo `json:"athlete"`
	ExpiresAt    int64       `json:"expires_at"`
}

type AthleteInfo struct {
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Id        int64  `json:"id"`
}

// Activity is the provider's summary/detailed activity representation.
type Activity struct {
	Id                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	Calories           float64   `json:"calories"`
	StartDate          time.Time `json:"start_date"`
	Athlete            struct {
		Id int64 `json:"id"`
	} `json:"athlete"`
}

// ToModel maps the provider activity onto a stored activity owned by athleteId.
func (a Activity) ToModel(athleteId int64) models.Activity {
	activityType := a.Type
	if activityType == "" {
		activityType = a.SportType
	}
	return models.Activity{
		AthleteID: athleteId,
		StravaId:  a.Id,
		Name:      a.Name,
		ActivityDetails: models.ActivityDetails{
			Type:               activityType,
			Distance:           a.Distance,
			MovingTime:         a.MovingTime,
			ElapsedTime:        a.ElapsedTime,
			TotalElevationGain: a.TotalElevationGain,
			Calories:           a.Calories,
			StartDate:          a.StartDate.UTC(),
		},
	}
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	authUrl              = "https://www.strava.com/oauth/token"
	deauthorizeUrl       = "https://www.strava.com/oauth/deauthorize"
	athleteActivitiesUrl = "https://www.strava.com/api/v3/athlete/activities"
	activityUrl          = "https://www.strava.com/api/v3/activities"
)

var (
	ErrUnauthorized = errors.New("strava: unauthorized")
	ErrNotFound     = errors.New("strava: not found")
)

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("strava: unexpected status %d", e.Status)
}

var Handler HTTPClient

func init() {
	Handler = &http.Client{Timeout: 30 * time.Second}
}

type Strava interface {
	Authorize(ctx context.Context, accessCode string) (*AuthResp, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*AuthResp, error)
	GetActivity(ctx context.Context, accessToken string, activityId int64) (*Activity, error)
	GetAthleteActivities(ctx context.Context, accessToken string, page, pageSize int, after, before *time.Time) ([]Activity, error)
	Deauthorize(ctx context.Context, accessToken string) error
}

var _ Strava = (*Client)(nil)

func NewStravaClient(clientId, clientSecret string) *Client {
	return &Client{
		ClientId:     clientId,
		ClientSecret: clientSecret,
	}
}

// Authorize exchanges an OAuth authorization code for tokens.
func (c *Client) Authorize(ctx context.Context, accessCode string) (*AuthResp, error) {
	return c.auth(ctx, c.getAuthPayload(accessCode, ""))
}

// RefreshAccessToken exchanges a refresh token for a fresh access token. The
// provider may or may not rotate the refresh token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*AuthResp, error) {
	return c.auth(ctx, c.getAuthPayload("", refreshToken))
}

func (c *Client) GetActivity(ctx context.Context, accessToken string, activityId int64) (*Activity, error) {
	u := fmt.Sprintf("%s/%d?include_all_efforts=false", activityUrl, activityId)
	var activity Activity
	if err := c.getJSON(ctx, accessToken, u, &activity); err != nil {
		slog.Error("error while fetching activity", "activityId", activityId, "err", err)
		return nil, err
	}
	return &activity, nil
}

// GetAthleteActivities fetches one page of the athlete's activities. after
// and before are optional epoch bounds.
func (c *Client) GetAthleteActivities(ctx context.Context, accessToken string, page, pageSize int, after, before *time.Time) ([]Activity, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		q.Set("per_page", strconv.Itoa(pageSize))
	}
	if after != nil {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	if before != nil {
		q.Set("before", strconv.FormatInt(before.Unix(), 10))
	}
	var activities []Activity
	if err := c.getJSON(ctx, accessToken, athleteActivitiesUrl+"?"+q.Encode(), &activities); err != nil {
		slog.Error("error while fetching athlete activities", "page", page, "err", err)
		return nil, err
	}
	return activities, nil
}

func (c *Client) Deauthorize(ctx context.Context, accessToken string) error {
	form := url.Values{"access_token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deauthorizeUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := Handler.Do(req)
	if err != nil {
		slog.Error("error while deauthorizing", "err", err)
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) getJSON(ctx context.Context, accessToken, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := Handler.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) auth(ctx context.Context, form url.Values) (*AuthResp, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := Handler.Do(req)
	if err != nil {
		slog.Error("error while fetching auth request from strava", "err", err)
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var authResp AuthResp
	if err = json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return nil, err
	}
	return &authResp, nil
}

func (c *Client) getAuthPayload(code string, refreshToken string) url.Values {
	form := url.Values{
		"client_id":     {c.ClientId},
		"client_secret": {c.ClientSecret},
	}
	if code == "" {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
	} else {
		form.Set("grant_type", "authorization_code")
		form.Set("code", code)
	}
	return form
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		utils.DebugResponse(resp)
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Status: resp.StatusCode, Body: utils.DebugResponse(resp)}
	}
}
