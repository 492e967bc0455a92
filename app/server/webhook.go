package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 30 * time.Second

// webhookEvent is a Strava push subscription event.
type webhookEvent struct {
	ObjectType string            `json:"object_type"`
	ObjectId   int64             `json:"object_id"`
	AspectType string            `json:"aspect_type"`
	OwnerId    int64             `json:"owner_id"`
	Updates    map[string]string `json:"updates"`
	EventTime  int64             `json:"event_time"`
}

func (h *HttpHandler) webhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.webhookVerify(w, r)
	case http.MethodPost:
		h.webhookEvent(w, r)
	default:
		slog.Error("method is not supported", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *HttpHandler) webhookVerify(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	mode := vals.Get("hub.mode")
	token := vals.Get("hub.verify_token")
	challenge := vals.Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.StravaToken {
		slog.Info("webhook verified")
		writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

// webhookEvent acknowledges the event at once and processes it in the
// background under its own deadline.
func (h *HttpHandler) webhookEvent(w http.ResponseWriter, r *http.Request) {
	var ev webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		slog.Error("error while reading webhook body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	slog.Info("got webhook event", "object", ev.ObjectType, "aspect", ev.AspectType, "objectId", ev.ObjectId, "ownerId", ev.OwnerId)

	timeout := h.WebhookTimeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	h.events.Add(1)
	go func() {
		defer h.events.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("webhook event panicked", "panic", rec, "objectId", ev.ObjectId)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := h.processEvent(ctx, ev); err != nil {
			slog.Error("error while processing webhook event", "err", err,
				"object", ev.ObjectType, "aspect", ev.AspectType, "objectId", ev.ObjectId)
		}
	}()

	w.WriteHeader(http.StatusOK)
}

func (h *HttpHandler) processEvent(ctx context.Context, ev webhookEvent) error {
	switch ev.ObjectType {
	case "activity":
		switch ev.AspectType {
		case "create", "update":
			_, err := h.Activities.SyncActivity(ctx, ev.OwnerId, ev.ObjectId)
			return err
		case "delete":
			return h.Activities.RemoveActivity(ctx, ev.OwnerId, ev.ObjectId)
		}
	case "athlete":
		if ev.AspectType == "update" && ev.Updates["authorized"] == "false" {
			return h.Athletes.Deauthorize(ctx, ev.ObjectId)
		}
		return nil
	}
	return fmt.Errorf("unsupported webhook event %s/%s", ev.ObjectType, ev.AspectType)
}

// WaitForEvents blocks until background webhook processing has drained.
func (h *HttpHandler) WaitForEvents() {
	h.events.Wait()
}
