package storage

import (
	"context"
	"stravachallenge/app/storage/models"
	"time"
)

const (
	insertNotificationQuery  = `INSERT INTO notifications (recipient_id, message, created_at) VALUES (?, ?, ?)`
	selectNotificationsQuery = `SELECT id, recipient_id, message, created_at FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
)

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := s.DB.ExecContext(ctx, insertNotificationQuery, n.RecipientId, n.Message, n.CreatedAt)
	if err != nil {
		return wrap("create notification", "notification", nil, err)
	}
	n.ID, err = res.LastInsertId()
	return wrap("create notification", "notification", nil, err)
}

func (s *SQLiteStore) GetNotifications(ctx context.Context, recipientId int64, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, selectNotificationsQuery, recipientId, limit)
	if err != nil {
		return nil, wrap("get notifications", "notification", nil, err)
	}
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientId, &n.Message, &n.CreatedAt); err != nil {
			return nil, wrap("scan notification", "notification", nil, err)
		}
		out = append(out, n)
	}
	return out, wrap("get notifications", "notification", nil, rows.Err())
}
