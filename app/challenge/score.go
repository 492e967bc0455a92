package challenge

import (
	"fmt"
	"math"
	"sort"
	"stravachallenge/app/storage/models"
	"strconv"
)

// Participant is one athlete together with the activities considered for a
// challenge. The order of a []Participant is the enumeration order used for
// ties on the scoreboard and for walking lottery tickets.
type Participant struct {
	Athlete    models.Athlete
	Activities []models.Activity
}

type AthleteScore struct {
	AthleteId int64   `json:"athlete_id"`
	Name      string  `json:"name"`
	Score     string  `json:"score"`
	Value     float64 `json:"value"`
}

type ScoreBoard struct {
	ChallengeId int64              `json:"challenge_id"`
	Measurement models.Measurement `json:"measurement"`
	Scores      []AthleteScore     `json:"scores"`
}

// Qualifying returns the activities that count towards the challenge.
func Qualifying(c models.Challenge, activities []models.Activity) []models.Activity {
	var out []models.Activity
	for _, a := range activities {
		if c.Counts(a) {
			out = append(out, a)
		}
	}
	return out
}

// Measure reduces activities to the raw value of the measurement. Unknown
// measurements score zero.
func Measure(m models.Measurement, activities []models.Activity) float64 {
	var total float64
	for _, a := range activities {
		switch m {
		case models.MeasurementDistance:
			total += a.Distance
		case models.MeasurementTime:
			total += float64(a.MovingTime)
		case models.MeasurementElevation:
			total += a.TotalElevationGain
		case models.MeasurementCalories:
			total += a.Calories
		}
	}
	return total
}

// FormatScore renders a raw value the way clients display it.
func FormatScore(m models.Measurement, value float64) string {
	switch m {
	case models.MeasurementDistance:
		return trimmed(value/1000) + " km"
	case models.MeasurementTime:
		return formatDuration(int64(value))
	case models.MeasurementElevation:
		return trimmed(value) + " m"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// trimmed formats with at most two decimals and no trailing zeros.
func trimmed(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

// ComputeScoreBoard ranks participants by their measured value, highest
// first. Ties keep the participants' input order. Inputs are not modified.
func ComputeScoreBoard(c models.Challenge, participants []Participant) ScoreBoard {
	scores := make([]AthleteScore, 0, len(participants))
	for _, p := range participants {
		value := Measure(c.Measurement, Qualifying(c, p.Activities))
		scores = append(scores, AthleteScore{
			AthleteId: p.Athlete.ID,
			Name:      p.Athlete.DisplayName(),
			Score:     FormatScore(c.Measurement, value),
			Value:     value,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Value > scores[j].Value
	})
	return ScoreBoard{ChallengeId: c.ID, Measurement: c.Measurement, Scores: scores}
}
