package models

import (
	"time"
)

type ActivityDetails struct {
	Type               string    `json:"type"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	Calories           float64   `json:"calories"`
	StartDate          time.Time `json:"start_date"`
}

type Activity struct {
	ID        int64  `json:"id,omitempty"`
	AthleteID int64  `json:"athlete_id"`
	StravaId  int64  `json:"strava_id"`
	Name      string `json:"name"`
	ActivityDetails
}

// ActivityFilter narrows GetActivities. Zero values match everything.
type ActivityFilter struct {
	AthleteIds []int64
	After      *time.Time
	Before     *time.Time
	Limit      int
}
