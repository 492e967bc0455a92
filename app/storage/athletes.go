package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"stravachallenge/app/apperr"
	"stravachallenge/app/storage/models"

	"github.com/pkg/errors"
)

const (
	athleteColumns = `id, strava_id, username, firstname, lastname, telegram_chat_id, strava_refresh_token, strava_access_token, token_expires_at`

	selectAllAthletesQuery       = `SELECT ` + athleteColumns + ` FROM athletes ORDER BY id`
	selectAthleteByIdQuery       = `SELECT ` + athleteColumns + ` FROM athletes WHERE id = ?`
	selectAthleteByStravaIdQuery = `SELECT ` + athleteColumns + ` FROM athletes WHERE strava_id = ?`

	upsertAthleteQuery = `
		INSERT INTO athletes (
			strava_id, username, firstname, lastname, telegram_chat_id, strava_refresh_token, strava_access_token, token_expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strava_id) DO UPDATE SET
			username = excluded.username,
			firstname = excluded.firstname,
			lastname = excluded.lastname,
			telegram_chat_id = COALESCE(excluded.telegram_chat_id, athletes.telegram_chat_id),
			strava_refresh_token = excluded.strava_refresh_token,
			strava_access_token = excluded.strava_access_token,
			token_expires_at = excluded.token_expires_at
		RETURNING id`
	athleteExistsQuery = `SELECT COUNT(1) FROM athletes WHERE strava_id = ?`

	updateAthleteTokensQuery = `UPDATE athletes SET strava_access_token = ?, strava_refresh_token = ?, token_expires_at = ? WHERE id = ?`
	clearAthleteTokensQuery  = `UPDATE athletes SET strava_access_token = '', strava_refresh_token = '', token_expires_at = NULL WHERE id = ?`

	selectFollowingQuery = `SELECT followee_id FROM follows WHERE follower_id = ? ORDER BY followee_id`
	selectFollowersQuery = `SELECT follower_id FROM follows WHERE followee_id = ? ORDER BY follower_id`
	insertFollowQuery    = `INSERT INTO follows (follower_id, followee_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	deleteFollowQuery    = `DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanAthlete(row rowScanner) (*models.Athlete, error) {
	a := &models.Athlete{}
	var refresh, access sql.NullString
	var username, first, last sql.NullString
	err := row.Scan(&a.ID, &a.StravaId, &username, &first, &last, &a.TelegramChatId, &refresh, &access, &a.TokenExpiresAt)
	if err != nil {
		return nil, err
	}
	a.Username, a.FirstName, a.LastName = username.String, first.String, last.String
	if a.StravaRefreshToken, err = s.Sealer.Open(refresh.String); err != nil {
		return nil, err
	}
	if a.StravaAccessToken, err = s.Sealer.Open(access.String); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAllAthletes returns every athlete without the follow graph.
func (s *SQLiteStore) GetAllAthletes(ctx context.Context) ([]*models.Athlete, error) {
	rows, err := s.DB.QueryContext(ctx, selectAllAthletesQuery)
	if err != nil {
		return nil, wrap("get all athletes", "athlete", nil, err)
	}
	defer rows.Close()
	var athletes []*models.Athlete
	for rows.Next() {
		a, err := s.scanAthlete(rows)
		if err != nil {
			return nil, wrap("scan athlete", "athlete", nil, err)
		}
		athletes = append(athletes, a)
	}
	return athletes, wrap("get all athletes", "athlete", nil, rows.Err())
}

// GetAthleteById loads the athlete together with both views of the follow graph.
func (s *SQLiteStore) GetAthleteById(ctx context.Context, id int64) (*models.Athlete, error) {
	a, err := s.scanAthlete(s.DB.QueryRowContext(ctx, selectAthleteByIdQuery, id))
	if err != nil {
		slog.Debug("error while fetching athlete by id", "id", id, "err", err)
		return nil, wrap("get athlete", "athlete", id, err)
	}
	return s.withEdges(ctx, a)
}

func (s *SQLiteStore) GetAthleteByStravaId(ctx context.Context, stravaId int64) (*models.Athlete, error) {
	a, err := s.scanAthlete(s.DB.QueryRowContext(ctx, selectAthleteByStravaIdQuery, stravaId))
	if err != nil {
		slog.Debug("error while fetching athlete by strava id", "stravaId", stravaId, "err", err)
		return nil, wrap("get athlete", "athlete", stravaId, err)
	}
	return s.withEdges(ctx, a)
}

func (s *SQLiteStore) withEdges(ctx context.Context, a *models.Athlete) (*models.Athlete, error) {
	var err error
	if a.Following, err = s.GetFollowing(ctx, a.ID); err != nil {
		return nil, err
	}
	if a.Followers, err = s.GetFollowers(ctx, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

// UpsertAthlete inserts or updates by strava id, sets athlete.ID and reports
// whether a new row was created.
func (s *SQLiteStore) UpsertAthlete(ctx context.Context, athlete *models.Athlete) (bool, error) {
	refresh, err := s.Sealer.Seal(athlete.StravaRefreshToken)
	if err != nil {
		return false, apperr.Storage("seal token", err)
	}
	access, err := s.Sealer.Seal(athlete.StravaAccessToken)
	if err != nil {
		return false, apperr.Storage("seal token", err)
	}
	var exists bool
	if err = s.DB.QueryRowContext(ctx, athleteExistsQuery, athlete.StravaId).Scan(&exists); err != nil {
		return false, wrap("upsert athlete", "athlete", athlete.StravaId, err)
	}
	err = s.DB.QueryRowContext(ctx, upsertAthleteQuery,
		athlete.StravaId, athlete.Username, athlete.FirstName, athlete.LastName, athlete.TelegramChatId,
		refresh, access, athlete.TokenExpiresAt,
	).Scan(&athlete.ID)
	if err != nil {
		slog.Error("error while upserting athlete", "err", err, "stravaId", athlete.StravaId)
		return false, wrap("upsert athlete", "athlete", athlete.StravaId, err)
	}
	return !exists, nil
}

func (s *SQLiteStore) UpdateAthleteTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt int64) error {
	access, err := s.Sealer.Seal(accessToken)
	if err != nil {
		return apperr.Storage("seal token", err)
	}
	refresh, err := s.Sealer.Seal(refreshToken)
	if err != nil {
		return apperr.Storage("seal token", err)
	}
	res, err := s.DB.ExecContext(ctx, updateAthleteTokensQuery, access, refresh, expiresAt, id)
	if err != nil {
		return wrap("update athlete tokens", "athlete", id, err)
	}
	return checkAffected(res, "athlete", id)
}

func (s *SQLiteStore) ClearAthleteTokens(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, clearAthleteTokensQuery, id)
	if err != nil {
		return wrap("clear athlete tokens", "athlete", id, err)
	}
	return checkAffected(res, "athlete", id)
}

func (s *SQLiteStore) GetFollowing(ctx context.Context, id int64) ([]int64, error) {
	return s.queryIds(ctx, "get following", selectFollowingQuery, id)
}

func (s *SQLiteStore) GetFollowers(ctx context.Context, id int64) ([]int64, error) {
	return s.queryIds(ctx, "get followers", selectFollowersQuery, id)
}

func (s *SQLiteStore) AddFollow(ctx context.Context, followerId, followeeId int64) error {
	_, err := s.DB.ExecContext(ctx, insertFollowQuery, followerId, followeeId)
	return wrap("add follow", "athlete", followeeId, err)
}

func (s *SQLiteStore) RemoveFollow(ctx context.Context, followerId, followeeId int64) error {
	_, err := s.DB.ExecContext(ctx, deleteFollowQuery, followerId, followeeId)
	return wrap("remove follow", "athlete", followeeId, err)
}

func (s *SQLiteStore) queryIds(ctx context.Context, op, query string, args ...any) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, "", nil, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage(op, errors.WithStack(err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, errors.WithStack(err))
	}
	return ids, nil
}
