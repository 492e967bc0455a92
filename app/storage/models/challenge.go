package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidChallenge = errors.New("invalid challenge")

type Measurement string

const (
	MeasurementDistance  Measurement = "distance"
	MeasurementTime      Measurement = "time"
	MeasurementElevation Measurement = "elevation"
	MeasurementCalories  Measurement = "calories"
)

func (m Measurement) Valid() bool {
	switch m {
	case MeasurementDistance, MeasurementTime, MeasurementElevation, MeasurementCalories:
		return true
	}
	return false
}

type Challenge struct {
	ID            int64       `json:"id,omitempty"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	OwnerId       int64       `json:"owner_id"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	Measurement   Measurement `json:"measurement"`
	ActivityTypes []string    `json:"activity_types"`
	Athletes      []int64     `json:"athletes"`
	WinnerId      *int64      `json:"winner_id"`
}

// Validate checks the invariants a challenge must hold before it is stored.
func (c Challenge) Validate() error {
	if !c.End.After(c.Start) {
		return fmt.Errorf("%w: end %s must be after start %s", ErrInvalidChallenge, c.End.Format(time.RFC3339), c.Start.Format(time.RFC3339))
	}
	if !c.Measurement.Valid() {
		return fmt.Errorf("%w: unknown measurement %q", ErrInvalidChallenge, c.Measurement)
	}
	return nil
}

// Counts reports whether the activity qualifies for the challenge: its start
// falls in [Start, End) and its type is accepted. An empty ActivityTypes
// accepts every type.
func (c Challenge) Counts(a Activity) bool {
	if a.StartDate.Before(c.Start) || !a.StartDate.Before(c.End) {
		return false
	}
	if len(c.ActivityTypes) == 0 {
		return true
	}
	for _, t := range c.ActivityTypes {
		if t == a.Type {
			return true
		}
	}
	return false
}

func (c Challenge) HasParticipant(athleteId int64) bool {
	for _, id := range c.Athletes {
		if id == athleteId {
			return true
		}
	}
	return false
}
