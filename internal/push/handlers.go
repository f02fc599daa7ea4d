package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/printstore/internal/common"
)

// maxPushBytes matches the payload ceiling of common push services.
const maxPushBytes = 4096

// Handler exposes the agent's platform surface over HTTP.
type Handler struct {
	Agent   *Agent
	Host    *Host
	Tray    Tray
	Windows WindowRegistry
	Logger  zerolog.Logger
	// PushMiddleware wraps only POST /push, typically a rate limit.
	PushMiddleware []func(http.Handler) http.Handler
}

// Routes mounts the tray, window and push endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.With(h.PushMiddleware...).Post("/push", h.Push)
	r.Route("/notifications", func(n chi.Router) {
		n.Get("/", h.List)
		n.Get("/{id}", h.Get)
		n.Post("/{id}/click", h.Click)
		n.Post("/{id}/close", h.Close)
	})
	r.Route("/windows", func(wr chi.Router) {
		wr.Get("/", h.ListWindows)
		wr.Post("/", h.RegisterWindow)
		wr.Delete("/{id}", h.RemoveWindow)
	})
}

// Push delivers a raw push message to the agent, bypassing the channel.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPushBytes+1))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read payload")
		return
	}
	if len(raw) > maxPushBytes {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "push payload too large")
		return
	}
	var inst *Instance
	err = h.Host.Run(r.Context(), "push", func(ctx context.Context) error {
		var err error
		inst, err = h.Agent.HandlePush(ctx, PushEvent{Data: raw})
		return err
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("push delivery failed")
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "notification could not be displayed")
		return
	}
	common.Data(w, http.StatusCreated, inst.Notification)
}

// List returns the displayed notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Tray.List(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list notifications failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list notifications")
		return
	}
	common.Data(w, http.StatusOK, items)
}

// Get returns one displayed notification.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	n, ok := h.lookup(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, n)
}

// Click activates a displayed notification.
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	n, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var body struct {
		Action string `json:"action"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
			return
		}
	}
	var act Activation
	err := h.Host.Run(r.Context(), "click", func(ctx context.Context) error {
		var err error
		act, err = h.Agent.HandleClick(ctx, ClickEvent{Notification: n, Action: strings.TrimSpace(body.Action)})
		return err
	})
	if err != nil {
		h.Logger.Error().Err(err).Str("notification_id", n.ID).Msg("activation failed")
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "activation failed")
		return
	}
	common.Data(w, http.StatusOK, act)
}

// Close dismisses a displayed notification.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	n, ok := h.lookup(w, r)
	if !ok {
		return
	}
	err := h.Host.Run(r.Context(), "close", func(ctx context.Context) error {
		return h.Agent.HandleClose(ctx, CloseEvent{Notification: n})
	})
	if err != nil {
		h.Logger.Error().Err(err).Str("notification_id", n.ID).Msg("dismissal failed")
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "dismissal failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWindows returns the registered windows.
func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	items, err := h.Windows.List(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list windows failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list windows")
		return
	}
	common.Data(w, http.StatusOK, items)
}

// RegisterWindow records an open window.
func (h *Handler) RegisterWindow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.URL) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "url is required")
		return
	}
	common.Data(w, http.StatusCreated, h.Windows.Register(strings.TrimSpace(body.URL)))
}

// RemoveWindow forgets a window.
func (h *Handler) RemoveWindow(w http.ResponseWriter, r *http.Request) {
	if !h.Windows.Remove(chi.URLParam(r, "id")) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "window not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (Notification, bool) {
	id := chi.URLParam(r, "id")
	n, err := h.Tray.Get(r.Context(), id)
	if errors.Is(err, ErrNotificationNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "notification not found")
		return Notification{}, false
	}
	if err != nil {
		h.Logger.Error().Err(err).Str("notification_id", id).Msg("load notification failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load notification")
		return Notification{}, false
	}
	return n, true
}
