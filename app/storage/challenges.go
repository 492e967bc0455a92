package storage

import (
	"context"
	"database/sql"
	"stravachallenge/app/apperr"
	"stravachallenge/app/storage/models"
	"strings"

	"github.com/pkg/errors"
)

const (
	challengeColumns = `id, name, description, owner_id, start_date, end_date, measurement, activity_types, winner_id`

	selectChallengeQuery     = `SELECT ` + challengeColumns + ` FROM challenges WHERE id = ?`
	selectChallengesQuery    = `SELECT ` + challengeColumns + ` FROM challenges ORDER BY start_date DESC, id`
	selectParticipantsQuery  = `SELECT athlete_id FROM challenge_athletes WHERE challenge_id = ? ORDER BY athlete_id`
	insertChallengeQuery     = `INSERT INTO challenges (name, description, owner_id, start_date, end_date, measurement, activity_types, winner_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertParticipantQuery   = `INSERT INTO challenge_athletes (challenge_id, athlete_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	deleteParticipantQuery   = `DELETE FROM challenge_athletes WHERE challenge_id = ? AND athlete_id = ?`
	deleteParticipantsQuery  = `DELETE FROM challenge_athletes WHERE challenge_id = ?`
	deleteChallengeQuery     = `DELETE FROM challenges WHERE id = ?`
	updateChallengeWinnerQry = `UPDATE challenges SET winner_id = ? WHERE id = ?`
	updateChallengeQuery     = `
    UPDATE challenges
    SET name = ?, description = ?, start_date = ?, end_date = ?, measurement = ?, activity_types = ?, winner_id = ?
    WHERE id = ?`
)

func joinTypes(types []string) string {
	return strings.Join(types, ",")
}

func splitTypes(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func scanChallenge(row rowScanner) (*models.Challenge, error) {
	c := &models.Challenge{}
	var name, description, types sql.NullString
	var owner sql.NullInt64
	var measurement string
	err := row.Scan(&c.ID, &name, &description, &owner, &c.Start, &c.End, &measurement, &types, &c.WinnerId)
	if err != nil {
		return nil, err
	}
	c.Name, c.Description, c.OwnerId = name.String, description.String, owner.Int64
	c.Measurement = models.Measurement(measurement)
	c.ActivityTypes = splitTypes(types.String)
	return c, nil
}

// GetChallenge returns the challenge with its participants ordered by athlete id.
func (s *SQLiteStore) GetChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	c, err := scanChallenge(s.DB.QueryRowContext(ctx, selectChallengeQuery, id))
	if err != nil {
		return nil, wrap("get challenge", "challenge", id, err)
	}
	if c.Athletes, err = s.queryIds(ctx, "get participants", selectParticipantsQuery, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) GetChallenges(ctx context.Context) ([]*models.Challenge, error) {
	rows, err := s.DB.QueryContext(ctx, selectChallengesQuery)
	if err != nil {
		return nil, wrap("get challenges", "challenge", nil, err)
	}
	var challenges []*models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			_ = rows.Close()
			return nil, wrap("scan challenge", "challenge", nil, err)
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, wrap("get challenges", "challenge", nil, err)
	}
	_ = rows.Close()

	for _, c := range challenges {
		if c.Athletes, err = s.queryIds(ctx, "get participants", selectParticipantsQuery, c.ID); err != nil {
			return nil, err
		}
	}
	return challenges, nil
}

// CreateChallenge stores the challenge and its initial participants in one
// transaction and sets challenge.ID.
func (s *SQLiteStore) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	return s.inTx(ctx, "create challenge", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, insertChallengeQuery, c.Name, c.Description, c.OwnerId, c.Start.UTC(), c.End.UTC(),
			string(c.Measurement), joinTypes(c.ActivityTypes), c.WinnerId)
		if err != nil {
			return err
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		for _, athleteId := range c.Athletes {
			if _, err := tx.ExecContext(ctx, insertParticipantQuery, c.ID, athleteId); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateChallenge writes the challenge's own columns; participants change
// only through AddParticipant and RemoveParticipant.
func (s *SQLiteStore) UpdateChallenge(ctx context.Context, c *models.Challenge) error {
	res, err := s.DB.ExecContext(ctx, updateChallengeQuery, c.Name, c.Description, c.Start.UTC(), c.End.UTC(),
		string(c.Measurement), joinTypes(c.ActivityTypes), c.WinnerId, c.ID)
	if err != nil {
		return wrap("update challenge", "challenge", c.ID, err)
	}
	return checkAffected(res, "challenge", c.ID)
}

func (s *SQLiteStore) DeleteChallenge(ctx context.Context, id int64) error {
	return s.inTx(ctx, "delete challenge", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteParticipantsQuery, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, deleteChallengeQuery, id)
		if err != nil {
			return err
		}
		return checkAffected(res, "challenge", id)
	})
}

func (s *SQLiteStore) AddParticipant(ctx context.Context, challengeId, athleteId int64) error {
	_, err := s.DB.ExecContext(ctx, insertParticipantQuery, challengeId, athleteId)
	return wrap("add participant", "challenge", challengeId, err)
}

func (s *SQLiteStore) RemoveParticipant(ctx context.Context, challengeId, athleteId int64) error {
	_, err := s.DB.ExecContext(ctx, deleteParticipantQuery, challengeId, athleteId)
	return wrap("remove participant", "challenge", challengeId, err)
}

func (s *SQLiteStore) SetChallengeWinner(ctx context.Context, challengeId int64, winnerId *int64) error {
	res, err := s.DB.ExecContext(ctx, updateChallengeWinnerQry, winnerId, challengeId)
	if err != nil {
		return wrap("set winner", "challenge", challengeId, err)
	}
	return checkAffected(res, "challenge", challengeId)
}

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage(op, errors.WithStack(err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if apperr.IsNotFound(err) || apperr.IsStorage(err) {
			return err
		}
		return apperr.Storage(op, errors.WithStack(err))
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage(op, errors.WithStack(err))
	}
	return nil
}
