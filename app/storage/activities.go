package storage

import (
	"context"
	"fmt"
	"log/slog"
	"stravachallenge/app/storage/models"
	"strings"
)

const (
	activityColumns = `id, athlete_id, strava_id, name, type, distance, moving_time, elapsed_time, total_elevation_gain, calories, start_date`

	selectActivityByIdQuery       = `SELECT ` + activityColumns + ` FROM activities WHERE id = ?`
	selectActivityByStravaIdQuery = `SELECT ` + activityColumns + ` FROM activities WHERE athlete_id = ? AND strava_id = ?`

	insertActivityQuery = `
    INSERT INTO activities (
        athlete_id, strava_id, name, type, distance, moving_time, elapsed_time, total_elevation_gain, calories, start_date
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateActivityQuery = `
    UPDATE activities
    SET
        name = ?,
        type = ?,
        distance = ?,
        moving_time = ?,
        elapsed_time = ?,
        total_elevation_gain = ?,
        calories = ?,
        start_date = ?
    WHERE id = ?`

	deleteActivityQuery = `DELETE FROM activities WHERE id = ?`
)

func scanActivity(row rowScanner) (*models.Activity, error) {
	a := &models.Activity{}
	err := row.Scan(&a.ID, &a.AthleteID, &a.StravaId, &a.Name, &a.Type, &a.Distance, &a.MovingTime,
		&a.ElapsedTime, &a.TotalElevationGain, &a.Calories, &a.StartDate)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) GetActivityById(ctx context.Context, id int64) (*models.Activity, error) {
	a, err := scanActivity(s.DB.QueryRowContext(ctx, selectActivityByIdQuery, id))
	if err != nil {
		return nil, wrap("get activity", "activity", id, err)
	}
	return a, nil
}

func (s *SQLiteStore) GetActivityByStravaId(ctx context.Context, athleteId, stravaId int64) (*models.Activity, error) {
	a, err := scanActivity(s.DB.QueryRowContext(ctx, selectActivityByStravaIdQuery, athleteId, stravaId))
	if err != nil {
		return nil, wrap("get activity", "activity", stravaId, err)
	}
	return a, nil
}

// buildActivitiesQuery renders the filter into SQL. After is inclusive and
// Before exclusive, matching a challenge's [start, end) window. Bounds are
// bound in UTC because start_date compares as text.
func buildActivitiesQuery(filter models.ActivityFilter) (string, []any) {
	var where []string
	var args []any
	if len(filter.AthleteIds) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.AthleteIds)), ", ")
		where = append(where, fmt.Sprintf("athlete_id IN (%s)", marks))
		for _, id := range filter.AthleteIds {
			args = append(args, id)
		}
	}
	if filter.After != nil {
		where = append(where, "start_date >= ?")
		args = append(args, filter.After.UTC())
	}
	if filter.Before != nil {
		where = append(where, "start_date < ?")
		args = append(args, filter.Before.UTC())
	}
	query := `SELECT ` + activityColumns + ` FROM activities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return query, args
}

func (s *SQLiteStore) GetActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error) {
	query, args := buildActivitiesQuery(filter)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("error while fetching activities", "err", err)
		return nil, wrap("get activities", "activity", nil, err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, wrap("scan activity", "activity", nil, err)
		}
		activities = append(activities, *a)
	}
	return activities, wrap("get activities", "activity", nil, rows.Err())
}

func (s *SQLiteStore) AddActivity(ctx context.Context, a *models.Activity) error {
	result, err := s.DB.ExecContext(ctx, insertActivityQuery, a.AthleteID, a.StravaId, a.Name, a.Type, a.Distance,
		a.MovingTime, a.ElapsedTime, a.TotalElevationGain, a.Calories, a.StartDate.UTC())
	if err != nil {
		slog.Error("error while creating activity", "err", err, "stravaId", a.StravaId)
		return wrap("add activity", "activity", a.StravaId, err)
	}
	a.ID, err = result.LastInsertId()
	return wrap("add activity", "activity", a.StravaId, err)
}

func (s *SQLiteStore) UpdateActivity(ctx context.Context, a *models.Activity) error {
	result, err := s.DB.ExecContext(ctx, updateActivityQuery, a.Name, a.Type, a.Distance, a.MovingTime,
		a.ElapsedTime, a.TotalElevationGain, a.Calories, a.StartDate.UTC(), a.ID)
	if err != nil {
		slog.Error("error while updating activity", "err", err, "id", a.ID)
		return wrap("update activity", "activity", a.ID, err)
	}
	return checkAffected(result, "activity", a.ID)
}

func (s *SQLiteStore) RemoveActivity(ctx context.Context, id int64) error {
	result, err := s.DB.ExecContext(ctx, deleteActivityQuery, id)
	if err != nil {
		return wrap("remove activity", "activity", id, err)
	}
	return checkAffected(result, "activity", id)
}
