package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/halvden/jellywatch/internal/publish"
	"github.com/halvden/jellywatch/internal/scheduler"
	"github.com/halvden/jellywatch/internal/stats"
	"github.com/halvden/jellywatch/internal/version"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	url, err := r.store.ServerURL(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	apiKey, err := r.store.APIKey(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	botToken, err := r.store.BotToken(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	target, err := r.store.PublishTarget(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	lastUpdate, err := r.store.LastUpdate(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := map[string]any{
		"jellyfin_url":    url,
		"api_key_set":     apiKey != "",
		"bot_token_set":   botToken != "",
		"channel_id":      target.ChannelID,
		"message_id":      target.MessageID,
		"update_interval": r.store.UpdateInterval(ctx).String(),
		"failure_backoff": r.store.Backoff(ctx).String(),
	}
	if !lastUpdate.IsZero() {
		resp["last_update"] = lastUpdate.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleUpdateSettings(w http.ResponseWriter, req *http.Request) {
	var body struct {
		JellyfinURL     string `json:"jellyfin_url"`
		JellyfinAPIKey  string `json:"jellyfin_api_key"`
		DiscordBotToken string `json:"discord_bot_token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	ctx := req.Context()
	if body.JellyfinURL != "" {
		if err := r.store.SetServerURL(ctx, body.JellyfinURL); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if body.JellyfinAPIKey != "" {
		if err := r.store.SetAPIKey(ctx, body.JellyfinAPIKey); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if body.DiscordBotToken != "" {
		if err := r.store.SetBotToken(ctx, body.DiscordBotToken); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (r *Router) handleTestConnection(w http.ResponseWriter, req *http.Request) {
	info, err := r.pipeline.TestConnection(req.Context())
	if err != nil {
		if errors.Is(err, stats.ErrNotConfigured) {
			writeError(w, http.StatusPreconditionFailed, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"server_name": info.ServerName,
		"version":     info.Version,
	})
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	err := r.scheduler.Trigger(req.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, stats.ErrNotConfigured), errors.Is(err, publish.ErrNoTarget):
		writeError(w, http.StatusPreconditionFailed, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (r *Router) handleSetupTarget(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ChannelID string `json:"channel_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.ChannelID == "" {
		writeError(w, http.StatusBadRequest, errors.New("channel_id is required"))
		return
	}

	target, err := r.pipeline.Setup(req.Context(), body.ChannelID)
	if err != nil {
		switch {
		case errors.Is(err, publish.ErrChannelNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, stats.ErrNotConfigured):
			writeError(w, http.StatusPreconditionFailed, err)
		default:
			writeError(w, http.StatusBadGateway, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"channel_id": target.ChannelID,
		"message_id": target.MessageID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
