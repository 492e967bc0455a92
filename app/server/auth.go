package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/utils"
	"strconv"
	"time"
)

const stravaAuthorizeURL = "https://www.strava.com/oauth/authorize"

type authResponse struct {
	Athlete   *models.Athlete `json:"athlete"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// authHandler sends the browser to Strava's consent page. An optional
// chat_id travels through the OAuth state so the callback can link the
// Telegram chat.
func (h *HttpHandler) authHandler(w http.ResponseWriter, r *http.Request) {
	q := url.Values{}
	q.Set("client_id", h.StravaClientId)
	q.Set("response_type", "code")
	q.Set("redirect_uri", h.Url+"/auth-callback")
	q.Set("approval_prompt", "force")
	q.Set("scope", "read,activity:read_all")
	if chatId := r.URL.Query().Get("chat_id"); chatId != "" {
		q.Set("state", chatId)
	}
	http.Redirect(w, r, stravaAuthorizeURL+"?"+q.Encode(), http.StatusTemporaryRedirect)
}

func (h *HttpHandler) authCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code, ok := utils.GetCodeFromUrl(r.URL.RawQuery)
	if !ok {
		slog.Error("auth callback without code", "query", r.URL.RawQuery)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing code"})
		return
	}

	var chatId *int64
	if state := r.URL.Query().Get("state"); state != "" {
		id, err := strconv.ParseInt(state, 10, 64)
		if err != nil {
			slog.Error("error while parsing chat id from state", "state", state)
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid state"})
			return
		}
		chatId = &id
	}

	a, err := h.Athletes.Connect(r.Context(), code, chatId)
	if err != nil {
		slog.Error("error while connecting athlete", "err", err)
		writeError(w, err)
		return
	}

	token, err := h.JWT.GenerateJWTForAthlete(a.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Athlete: a, Token: token.Value, ExpiresAt: token.ExpiresAt})
}
