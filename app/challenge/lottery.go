package challenge

import (
	"math"
	"math/rand/v2"
	"stravachallenge/app/storage/models"
)

// Source returns a uniformly random integer in [0, n).
type Source func(n int64) int64

// DefaultSource draws from the runtime's randomly seeded generator, so
// repeated draws are independent.
var DefaultSource Source = rand.Int64N

// Tickets is the number of lottery tickets one activity earns: one per
// kilometre, per metre climbed or per 30 minutes moving. Other measurements
// earn none.
func Tickets(m models.Measurement, a models.Activity) int64 {
	switch m {
	case models.MeasurementDistance:
		return int64(math.Floor(a.Distance / 1000))
	case models.MeasurementElevation:
		return int64(math.Floor(a.TotalElevationGain))
	case models.MeasurementTime:
		return a.MovingTime / 1800
	}
	return 0
}

type entry struct {
	athlete models.Athlete
	tickets int64
}

func ticketEntries(c models.Challenge, participants []Participant) ([]entry, int64) {
	var (
		entries []entry
		total   int64
	)
	for _, p := range participants {
		var tickets int64
		for _, a := range Qualifying(c, p.Activities) {
			if t := Tickets(c.Measurement, a); t > 0 {
				tickets += t
			}
		}
		if tickets == 0 {
			continue
		}
		entries = append(entries, entry{athlete: p.Athlete, tickets: tickets})
		total += tickets
	}
	return entries, total
}

// pick walks the cumulative ticket ranges and returns the entry whose range
// holds r, with r in [1, total].
func pick(entries []entry, r int64) *models.Athlete {
	var upper int64
	for i := range entries {
		upper += entries[i].tickets
		if r <= upper {
			winner := entries[i].athlete
			return &winner
		}
	}
	return nil
}

// Draw picks a winner with probability proportional to tickets earned.
// Participants without tickets take no part; nil means nobody qualified.
func Draw(c models.Challenge, participants []Participant, src Source) *models.Athlete {
	if src == nil {
		src = DefaultSource
	}
	entries, total := ticketEntries(c, participants)
	if total == 0 {
		return nil
	}
	return pick(entries, src(total)+1)
}
