package server

import (
	"encoding/json"
	"net/http"
	"stravachallenge/app/storage/models"
	"strconv"
)

func (h *HttpHandler) meHandler(w http.ResponseWriter, r *http.Request) {
	a, err := h.Athletes.Get(r.Context(), currentAthlete(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *HttpHandler) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Athletes.Disconnect(r.Context(), currentAthlete(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HttpHandler) listAthletesHandler(w http.ResponseWriter, r *http.Request) {
	athletes, err := h.Athletes.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, athletes)
}

func (h *HttpHandler) followHandler(w http.ResponseWriter, r *http.Request) {
	followee, err := pathId(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid athlete id"})
		return
	}
	if err := h.Athletes.Follow(r.Context(), currentAthlete(r), followee); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HttpHandler) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	followee, err := pathId(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid athlete id"})
		return
	}
	if err := h.Athletes.Unfollow(r.Context(), currentAthlete(r), followee); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HttpHandler) listChallengesHandler(w http.ResponseWriter, r *http.Request) {
	challenges, err := h.Challenges.ListChallenges(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, challenges)
}

func (h *HttpHandler) getChallengeHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		c, err := h.Challenges.GetChallenge(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})
}

func (h *HttpHandler) createChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var c models.Challenge
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid challenge body"})
		return
	}
	c.ID = 0
	c.OwnerId = currentAthlete(r)
	created, err := h.Challenges.Create(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HttpHandler) updateChallengeHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		var c models.Challenge
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid challenge body"})
			return
		}
		c.ID = id
		updated, err := h.Challenges.Update(r.Context(), c)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})
}

func (h *HttpHandler) deleteChallengeHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		if err := h.Challenges.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *HttpHandler) joinChallengeHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		c, err := h.Challenges.Join(r.Context(), id, currentAthlete(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})
}

func (h *HttpHandler) leaveChallengeHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		c, err := h.Challenges.Leave(r.Context(), id, currentAthlete(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})
}

func (h *HttpHandler) scoreboardHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		board, err := h.Challenges.GetScoreBoard(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
	})
}

type drawResponse struct {
	Winner *models.Athlete `json:"winner"`
}

func (h *HttpHandler) drawWinnerHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		winner, err := h.Challenges.DrawWinner(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, drawResponse{Winner: winner})
	})
}

func (h *HttpHandler) clearWinnerHandler(w http.ResponseWriter, r *http.Request) {
	h.withChallengeId(w, r, func(id int64) {
		if err := h.Challenges.ClearWinner(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *HttpHandler) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = n
	}
	list, err := h.Notifications.List(r.Context(), currentAthlete(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HttpHandler) withChallengeId(w http.ResponseWriter, r *http.Request, fn func(id int64)) {
	id, err := pathId(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid challenge id"})
		return
	}
	fn(id)
}
