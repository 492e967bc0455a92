package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"stravachallenge/app/feed"
	"stravachallenge/app/storage/models"
)

// Store is the part of the repository the engine reads and writes.
type Store interface {
	GetAthleteById(ctx context.Context, id int64) (*models.Athlete, error)
	GetActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)

	GetChallenge(ctx context.Context, id int64) (*models.Challenge, error)
	GetChallenges(ctx context.Context) ([]*models.Challenge, error)
	CreateChallenge(ctx context.Context, challenge *models.Challenge) error
	UpdateChallenge(ctx context.Context, challenge *models.Challenge) error
	DeleteChallenge(ctx context.Context, id int64) error
	AddParticipant(ctx context.Context, challengeId, athleteId int64) error
	RemoveParticipant(ctx context.Context, challengeId, athleteId int64) error
	SetChallengeWinner(ctx context.Context, challengeId int64, winnerId *int64) error
}

// Notifier delivers a message to an athlete.
type Notifier interface {
	Notify(ctx context.Context, recipientId int64, message string) error
}

// Engine serves scoreboards and draws, and publishes every challenge change
// on the challenge feed after it has been stored.
type Engine struct {
	store    Store
	bus      *feed.Bus[models.Challenge]
	notifier Notifier
	source   Source
}

func NewEngine(store Store, bus *feed.Bus[models.Challenge], notifier Notifier) *Engine {
	return &Engine{store: store, bus: bus, notifier: notifier, source: DefaultSource}
}

// WithSource replaces the random source used by DrawWinner.
func (e *Engine) WithSource(src Source) *Engine {
	e.source = src
	return e
}

func (e *Engine) GetChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	return e.store.GetChallenge(ctx, id)
}

func (e *Engine) ListChallenges(ctx context.Context) ([]*models.Challenge, error) {
	return e.store.GetChallenges(ctx)
}

// Participants loads every participant of c, ordered by athlete id, with the
// activities that fall inside the challenge window.
func (e *Engine) Participants(ctx context.Context, c *models.Challenge) ([]Participant, error) {
	ids := append([]int64(nil), c.Athletes...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return nil, nil
	}

	start, end := c.Start, c.End
	activities, err := e.store.GetActivities(ctx, models.ActivityFilter{AthleteIds: ids, After: &start, Before: &end})
	if err != nil {
		return nil, err
	}
	byAthlete := make(map[int64][]models.Activity, len(ids))
	for _, a := range activities {
		byAthlete[a.AthleteID] = append(byAthlete[a.AthleteID], a)
	}

	participants := make([]Participant, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		athlete, err := e.store.GetAthleteById(ctx, id)
		if err != nil {
			return nil, err
		}
		participants = append(participants, Participant{Athlete: *athlete, Activities: byAthlete[id]})
	}
	return participants, nil
}

func (e *Engine) GetScoreBoard(ctx context.Context, challengeId int64) (*ScoreBoard, error) {
	c, err := e.store.GetChallenge(ctx, challengeId)
	if err != nil {
		return nil, err
	}
	participants, err := e.Participants(ctx, c)
	if err != nil {
		return nil, err
	}
	board := ComputeScoreBoard(*c, participants)
	return &board, nil
}

// DrawWinner runs the lottery once, stores the winner and publishes the
// updated challenge. A nil athlete with a nil error means nobody earned a
// ticket; nothing is stored in that case.
func (e *Engine) DrawWinner(ctx context.Context, challengeId int64) (*models.Athlete, error) {
	c, err := e.store.GetChallenge(ctx, challengeId)
	if err != nil {
		return nil, err
	}
	participants, err := e.Participants(ctx, c)
	if err != nil {
		return nil, err
	}

	winner := Draw(*c, participants, e.source)
	if winner == nil {
		slog.Info("no qualifying tickets, no winner drawn", "challengeId", challengeId)
		return nil, nil
	}

	winnerId := winner.ID
	if err := e.store.SetChallengeWinner(ctx, challengeId, &winnerId); err != nil {
		return nil, err
	}
	c.WinnerId = &winnerId
	e.publish(feed.Updated(*c))
	slog.Info("challenge winner drawn", "challengeId", challengeId, "athleteId", winnerId)

	e.announce(ctx, c, winner, participants)
	return winner, nil
}

func (e *Engine) announce(ctx context.Context, c *models.Challenge, winner *models.Athlete, participants []Participant) {
	if e.notifier == nil {
		return
	}
	for _, p := range participants {
		msg := fmt.Sprintf("%s won the challenge %q", winner.DisplayName(), c.Name)
		if p.Athlete.ID == winner.ID {
			msg = fmt.Sprintf("You won the challenge %q!", c.Name)
		}
		if err := e.notifier.Notify(ctx, p.Athlete.ID, msg); err != nil {
			slog.Error("failed to notify participant", "challengeId", c.ID, "athleteId", p.Athlete.ID, "err", err)
		}
	}
}

// ClearWinner resets the winner so the draw can be repeated. It publishes
// nothing.
func (e *Engine) ClearWinner(ctx context.Context, challengeId int64) error {
	return e.store.SetChallengeWinner(ctx, challengeId, nil)
}

// GetChallengeFeed returns a resilient stream of every challenge change.
func (e *Engine) GetChallengeFeed() *feed.Resilient[models.Challenge] {
	return feed.NewResilient[models.Challenge](e.bus, nil)
}

// Create stores a new challenge with its owner as the first participant.
func (e *Engine) Create(ctx context.Context, c models.Challenge) (*models.Challenge, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.Start, c.End = c.Start.UTC(), c.End.UTC()
	c.WinnerId = nil
	c.Athletes = append([]int64(nil), c.Athletes...)
	if c.OwnerId != 0 && !c.HasParticipant(c.OwnerId) {
		c.Athletes = append(c.Athletes, c.OwnerId)
	}
	sort.Slice(c.Athletes, func(i, j int) bool { return c.Athletes[i] < c.Athletes[j] })

	if err := e.store.CreateChallenge(ctx, &c); err != nil {
		return nil, err
	}
	e.publish(feed.Created(c))
	return &c, nil
}

// Update replaces the editable fields of an existing challenge. Owner,
// participants and winner are kept from the stored copy.
func (e *Engine) Update(ctx context.Context, c models.Challenge) (*models.Challenge, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	existing, err := e.store.GetChallenge(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Start, c.End = c.Start.UTC(), c.End.UTC()
	c.OwnerId = existing.OwnerId
	c.Athletes = existing.Athletes
	c.WinnerId = existing.WinnerId
	if err := e.store.UpdateChallenge(ctx, &c); err != nil {
		return nil, err
	}
	e.publish(feed.Updated(c))
	return &c, nil
}

func (e *Engine) Join(ctx context.Context, challengeId, athleteId int64) (*models.Challenge, error) {
	c, err := e.store.GetChallenge(ctx, challengeId)
	if err != nil {
		return nil, err
	}
	if err := e.store.AddParticipant(ctx, challengeId, athleteId); err != nil {
		return nil, err
	}
	if !c.HasParticipant(athleteId) {
		c.Athletes = append(c.Athletes, athleteId)
		sort.Slice(c.Athletes, func(i, j int) bool { return c.Athletes[i] < c.Athletes[j] })
	}
	e.publish(feed.Updated(*c))
	return c, nil
}

func (e *Engine) Leave(ctx context.Context, challengeId, athleteId int64) (*models.Challenge, error) {
	c, err := e.store.GetChallenge(ctx, challengeId)
	if err != nil {
		return nil, err
	}
	if err := e.store.RemoveParticipant(ctx, challengeId, athleteId); err != nil {
		return nil, err
	}
	athletes := make([]int64, 0, len(c.Athletes))
	for _, id := range c.Athletes {
		if id != athleteId {
			athletes = append(athletes, id)
		}
	}
	c.Athletes = athletes
	e.publish(feed.Updated(*c))
	return c, nil
}

func (e *Engine) Delete(ctx context.Context, challengeId int64) error {
	c, err := e.store.GetChallenge(ctx, challengeId)
	if err != nil {
		return err
	}
	if err := e.store.DeleteChallenge(ctx, challengeId); err != nil {
		return err
	}
	e.publish(feed.Deleted(*c))
	return nil
}

func (e *Engine) publish(u feed.Update[models.Challenge]) {
	if err := e.bus.Publish(u); err != nil {
		slog.Warn("failed to publish challenge update", "challengeId", u.Item.ID, "action", u.Action.String(), "err", err)
	}
}
