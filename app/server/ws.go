package server

import (
	"context"
	"log/slog"
	"net/http"
	"stravachallenge/app/apperr"
	"stravachallenge/app/feed"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *HttpHandler) activitiesStream(w http.ResponseWriter, r *http.Request) {
	stream(w, r, "activities", h.Activities.Feed(currentAthlete(r)))
}

func (h *HttpHandler) challengesStream(w http.ResponseWriter, r *http.Request) {
	stream(w, r, "challenges", h.Challenges.GetChallengeFeed())
}

func (h *HttpHandler) notificationsStream(w http.ResponseWriter, r *http.Request) {
	stream(w, r, "notifications", h.Notifications.Feed(currentAthlete(r)))
}

func (h *HttpHandler) athletesStream(w http.ResponseWriter, r *http.Request) {
	stream(w, r, "athletes", h.Athletes.Feed())
}

// stream upgrades the request and writes every update as a JSON frame until
// the client goes away. A failed write re-subscribes after the retry delay;
// a closed read side ends the stream.
func stream[T any](w http.ResponseWriter, r *http.Request, name string, updates *feed.Resilient[T]) {
	athleteId := currentAthlete(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "feed", name, "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Info("feed stream opened", "feed", name, "athleteId", athleteId)
	err = updates.Run(ctx, func(_ context.Context, u feed.Update[T]) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(u); err != nil {
			return &apperr.TransientDeliveryError{Err: err}
		}
		return nil
	})
	if err != nil {
		slog.Warn("feed stream ended", "feed", name, "athleteId", athleteId, "err", err)
		return
	}
	slog.Info("feed stream closed", "feed", name, "athleteId", athleteId)
}
