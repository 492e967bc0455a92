package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"stravachallenge/app/apperr"
	"stravachallenge/app/storage/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Store is the repository capability the engine consumes. Every call works
// on a fresh snapshot; nothing returned here stays valid after the call.
type Store interface {
	Connect() error

	GetAllAthletes(ctx context.Context) ([]*models.Athlete, error)
	GetAthleteById(ctx context.Context, id int64) (*models.Athlete, error)
	GetAthleteByStravaId(ctx context.Context, stravaId int64) (*models.Athlete, error)
	UpsertAthlete(ctx context.Context, athlete *models.Athlete) (bool, error)
	UpdateAthleteTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt int64) error
	ClearAthleteTokens(ctx context.Context, id int64) error
	GetFollowing(ctx context.Context, id int64) ([]int64, error)
	GetFollowers(ctx context.Context, id int64) ([]int64, error)
	AddFollow(ctx context.Context, followerId, followeeId int64) error
	RemoveFollow(ctx context.Context, followerId, followeeId int64) error

	GetActivityById(ctx context.Context, id int64) (*models.Activity, error)
	GetActivityByStravaId(ctx context.Context, athleteId, stravaId int64) (*models.Activity, error)
	GetActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)
	AddActivity(ctx context.Context, activity *models.Activity) error
	UpdateActivity(ctx context.Context, activity *models.Activity) error
	RemoveActivity(ctx context.Context, id int64) error

	GetChallenge(ctx context.Context, id int64) (*models.Challenge, error)
	GetChallenges(ctx context.Context) ([]*models.Challenge, error)
	CreateChallenge(ctx context.Context, challenge *models.Challenge) error
	UpdateChallenge(ctx context.Context, challenge *models.Challenge) error
	DeleteChallenge(ctx context.Context, id int64) error
	AddParticipant(ctx context.Context, challengeId, athleteId int64) error
	RemoveParticipant(ctx context.Context, challengeId, athleteId int64) error
	SetChallengeWinner(ctx context.Context, challengeId int64, winnerId *int64) error

	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotifications(ctx context.Context, recipientId int64, limit int) ([]models.Notification, error)
}

var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	DB     *sql.DB
	Path   string
	Sealer *TokenSealer
}

func NewSQLiteStore(path string, sealer *TokenSealer) *SQLiteStore {
	return &SQLiteStore{Path: path, Sealer: sealer}
}

func (s *SQLiteStore) Connect() error {
	path := s.Path
	if path == "" {
		path = "db/stravachallenge.db"
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		slog.Error("cannot open sqlite file", "path", path)
		return apperr.Storage("connect", errors.WithStack(err))
	}
	s.DB = db
	if err = s.createTables(); err != nil {
		slog.Error("cannot create tables", "err", err)
		return apperr.Storage("create tables", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *SQLiteStore) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS athletes (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  strava_id INTEGER UNIQUE NOT NULL,
		  username TEXT,
		  firstname TEXT,
		  lastname TEXT,
		  telegram_chat_id INTEGER,
		  strava_refresh_token TEXT,
		  strava_access_token TEXT,
		  token_expires_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS follows (
		  follower_id INTEGER NOT NULL,
		  followee_id INTEGER NOT NULL,
		  PRIMARY KEY (follower_id, followee_id),
		  CHECK (follower_id <> followee_id),
		  FOREIGN KEY(follower_id) REFERENCES athletes(id) ON DELETE CASCADE,
		  FOREIGN KEY(followee_id) REFERENCES athletes(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  athlete_id INTEGER NOT NULL,
		  strava_id INTEGER NOT NULL,
		  name TEXT,
		  type TEXT,
		  distance REAL,
		  moving_time INTEGER,
		  elapsed_time INTEGER,
		  total_elevation_gain REAL,
		  calories REAL,
		  start_date DATETIME,
		  UNIQUE (athlete_id, strava_id),
		  FOREIGN KEY(athlete_id) REFERENCES athletes(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS challenges (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  name TEXT,
		  description TEXT,
		  owner_id INTEGER,
		  start_date DATETIME NOT NULL,
		  end_date DATETIME NOT NULL,
		  measurement TEXT NOT NULL,
		  activity_types TEXT,
		  winner_id INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS challenge_athletes (
		  challenge_id INTEGER NOT NULL,
		  athlete_id INTEGER NOT NULL,
		  PRIMARY KEY (challenge_id, athlete_id),
		  FOREIGN KEY(challenge_id) REFERENCES challenges(id) ON DELETE CASCADE,
		  FOREIGN KEY(athlete_id) REFERENCES athletes(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  recipient_id INTEGER NOT NULL,
		  message TEXT NOT NULL,
		  created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_start ON activities(athlete_id, start_date);`,
	}
	for _, t := range tables {
		if _, err := s.DB.Exec(t); err != nil {
			return errors.Wrap(err, "create table")
		}
	}
	return nil
}

// wrap maps driver errors onto the apperr taxonomy.
func wrap(op, kind string, id any, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(kind, id)
	}
	return apperr.Storage(op, errors.WithStack(err))
}

func checkAffected(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("rows affected", errors.WithStack(err))
	}
	if n == 0 {
		return apperr.NotFound(kind, id)
	}
	return nil
}
