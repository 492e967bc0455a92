package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"stravachallenge/app/apperr"
	"stravachallenge/app/athlete"
	"stravachallenge/app/challenge"
	"stravachallenge/app/feed"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/utils"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ActivityService interface {
	SyncActivity(ctx context.Context, ownerStravaId, activityStravaId int64) (*models.Activity, error)
	RemoveActivity(ctx context.Context, ownerStravaId, activityStravaId int64) error
	Feed(athleteId int64) *feed.Resilient[models.Activity]
}

type AthleteService interface {
	Connect(ctx context.Context, code string, chatId *int64) (*models.Athlete, error)
	Deauthorize(ctx context.Context, stravaId int64) error
	Disconnect(ctx context.Context, athleteId int64) error
	Follow(ctx context.Context, followerId, followeeId int64) error
	Unfollow(ctx context.Context, followerId, followeeId int64) error
	Get(ctx context.Context, id int64) (*models.Athlete, error)
	List(ctx context.Context) ([]*models.Athlete, error)
	Feed() *feed.Resilient[models.Athlete]
}

type ChallengeService interface {
	GetChallenge(ctx context.Context, id int64) (*models.Challenge, error)
	ListChallenges(ctx context.Context) ([]*models.Challenge, error)
	GetScoreBoard(ctx context.Context, challengeId int64) (*challenge.ScoreBoard, error)
	DrawWinner(ctx context.Context, challengeId int64) (*models.Athlete, error)
	ClearWinner(ctx context.Context, challengeId int64) error
	Create(ctx context.Context, c models.Challenge) (*models.Challenge, error)
	Update(ctx context.Context, c models.Challenge) (*models.Challenge, error)
	Join(ctx context.Context, challengeId, athleteId int64) (*models.Challenge, error)
	Leave(ctx context.Context, challengeId, athleteId int64) (*models.Challenge, error)
	Delete(ctx context.Context, challengeId int64) error
	GetChallengeFeed() *feed.Resilient[models.Challenge]
}

type NotificationService interface {
	List(ctx context.Context, recipientId int64, limit int) ([]models.Notification, error)
	Feed(recipientId int64) *feed.Resilient[models.Notification]
}

type HttpHandler struct {
	Url            string
	Port           string
	StravaToken    string
	StravaClientId string
	WebhookTimeout time.Duration

	Activities    ActivityService
	Athletes      AthleteService
	Challenges    ChallengeService
	Notifications NotificationService
	JWT           utils.JWT

	events sync.WaitGroup
}

// Routes wires every endpoint onto a fresh mux.
func (h *HttpHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth", h.authHandler)
	mux.HandleFunc("GET /auth-callback", h.authCallbackHandler)
	mux.HandleFunc("/webhook", h.webhook)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/me", h.authenticated(h.meHandler))
	mux.HandleFunc("DELETE /api/me", h.authenticated(h.disconnectHandler))
	mux.HandleFunc("GET /api/athletes", h.authenticated(h.listAthletesHandler))
	mux.HandleFunc("POST /api/athletes/{id}/follow", h.authenticated(h.followHandler))
	mux.HandleFunc("DELETE /api/athletes/{id}/follow", h.authenticated(h.unfollowHandler))

	mux.HandleFunc("GET /api/challenges", h.authenticated(h.listChallengesHandler))
	mux.HandleFunc("POST /api/challenges", h.authenticated(h.createChallengeHandler))
	mux.HandleFunc("GET /api/challenges/{id}", h.authenticated(h.getChallengeHandler))
	mux.HandleFunc("PUT /api/challenges/{id}", h.authenticated(h.updateChallengeHandler))
	mux.HandleFunc("DELETE /api/challenges/{id}", h.authenticated(h.deleteChallengeHandler))
	mux.HandleFunc("POST /api/challenges/{id}/join", h.authenticated(h.joinChallengeHandler))
	mux.HandleFunc("POST /api/challenges/{id}/leave", h.authenticated(h.leaveChallengeHandler))
	mux.HandleFunc("GET /api/challenges/{id}/scoreboard", h.authenticated(h.scoreboardHandler))
	mux.HandleFunc("POST /api/challenges/{id}/draw", h.authenticated(h.drawWinnerHandler))
	mux.HandleFunc("DELETE /api/challenges/{id}/winner", h.authenticated(h.clearWinnerHandler))

	mux.HandleFunc("GET /api/notifications", h.authenticated(h.notificationsHandler))

	mux.HandleFunc("GET /ws/activities", h.authenticated(h.activitiesStream))
	mux.HandleFunc("GET /ws/challenges", h.authenticated(h.challengesStream))
	mux.HandleFunc("GET /ws/notifications", h.authenticated(h.notificationsStream))
	mux.HandleFunc("GET /ws/athletes", h.authenticated(h.athletesStream))

	return mux
}

// Start serves until ctx is done, then shuts down gracefully and waits for
// in-flight webhook events.
func (h *HttpHandler) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + h.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", h.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	h.events.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type athleteKey struct{}

// authenticated resolves the athlete from a bearer token or the token query
// parameter. Browsers cannot set headers on WebSocket upgrades, hence the
// query fallback.
func (h *HttpHandler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		athleteId, err := h.JWT.GetAthleteIdFromToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), athleteKey{}, athleteId)))
	}
}

func currentAthlete(r *http.Request) int64 {
	id, _ := r.Context().Value(athleteKey{}).(int64)
	return id
}

func pathId(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("error while writing response", "err", err)
	}
}

// writeError maps the error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, athlete.ErrSelfFollow), errors.Is(err, models.ErrInvalidChallenge):
		status = http.StatusBadRequest
	case apperr.IsUpstreamAuth(err):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
